// Package logger はサービス共通のJSON構造化ロガーを構築する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログに付与する service 属性の値。
const ServiceName = "hikbridge"

// Redacted は秘匿属性の置換後の値。
const Redacted = "[REDACTED]"

// sensitiveKeys はログに値を出力しない属性キー（小文字）。
var sensitiveKeys = map[string]bool{
	"app_secret":     true,
	"appsecret":      true,
	"admin_token":    true,
	"authorization":  true,
	"password":       true,
	"x-ca-signature": true,
	"signature":      true,
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 未知の値はinfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsSensitiveKey は属性キーが秘匿対象かどうかを返す。
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 全エントリに service 属性を付与し、秘匿キーの値は Redacted に置き換える。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はSetupのロガーをグローバルロガーとして設定し、そのロガーを返す。
// w が nil の場合は os.Stdout に出力する。
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}
