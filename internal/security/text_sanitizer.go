// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は居住者・来訪者の自由入力項目からHTMLを除去し、
// HikCentralやローカルDBにマークアップが保存されないようにする。
// bluemondayの StrictPolicy を使用し、全てのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// エンティティは元の文字に戻す（"O'Brien" はそのまま残る）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は全てのHTMLタグを除去したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}
