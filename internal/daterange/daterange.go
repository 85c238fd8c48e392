// Package daterange は居住者の有効期間をHikCentralが受け付ける形式に正規化する。
package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WireFormat はHikCentralに送る日時形式（ローカルの数値オフセット付きISO 8601）。
const WireFormat = "2006-01-02T15:04:05-07:00"

// DefaultMaxYears は有効期間の上限年数のデフォルト値。
const DefaultMaxYears = 10

var (
	// ErrInvalidDate は日付を解析できなかった場合のエラー。
	ErrInvalidDate = errors.New("daterange: invalid date")
	// ErrInvalidRange は開始日時が終了日時より後の場合のエラー。
	ErrInvalidRange = errors.New("daterange: from must not be after to")
)

// 受け付ける入力形式。上から順に試す。
var inputLayouts = []struct {
	layout   string
	hasZone  bool
	dateOnly bool
}{
	{time.RFC3339Nano, true, false},
	{"2006-01-02T15:04:05", false, false},
	{"2006-01-02T15:04", false, false},
	{"2006-01-02", false, true},
}

// Range は正規化済みの有効期間。
// Adjusted が true の場合、To は上限まで切り詰められており、元の値を OriginalFrom・OriginalTo に保持する。
type Range struct {
	From         string
	To           string
	Adjusted     bool
	OriginalFrom string
	OriginalTo   string
	Reason       string
}

// Normalizer は有効期間の解析・検証・切り詰め・整形を行う。
type Normalizer struct {
	MaxYears int
	Location *time.Location
	Clock    func() time.Time // nil の場合は time.Now
}

// New はNormalizerを生成する。maxYears が0以下の場合は DefaultMaxYears、loc が nil の場合は time.Local を使用する。
func New(maxYears int, loc *time.Location) *Normalizer {
	if maxYears <= 0 {
		maxYears = DefaultMaxYears
	}
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{MaxYears: maxYears, Location: loc, Clock: time.Now}
}

// Parse は日時文字列を解析する。
// オフセットなしの日時および日付のみの入力は Normalizer のロケーションの時刻として扱う。
func (n *Normalizer) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, l := range inputLayouts {
		var (
			t   time.Time
			err error
		)
		if l.hasZone {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, n.location())
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Normalize は from・to を解析し、上限年数を超える場合は to を切り詰めて返す。
func (n *Normalizer) Normalize(from, to string) (Range, error) {
	start, err := n.Parse(from)
	if err != nil {
		return Range{}, err
	}
	end, err := n.Parse(to)
	if err != nil {
		return Range{}, err
	}
	if start.After(end) {
		return Range{}, ErrInvalidRange
	}

	limit := n.MaxEnd(start)
	if end.After(limit) {
		return Range{
			From:         n.Format(start),
			To:           n.Format(limit),
			Adjusted:     true,
			OriginalFrom: n.Format(start),
			OriginalTo:   n.Format(end),
			Reason:       fmt.Sprintf("Date range exceeded %d years, adjusted to maximum allowed duration", n.maxYears()),
		}, nil
	}

	return Range{
		From: n.Format(start),
		To:   n.Format(end),
	}, nil
}

// MaxEnd は開始日時に対する終了日時の上限を返す。暦年で加算する。
func (n *Normalizer) MaxEnd(start time.Time) time.Time {
	return start.In(n.location()).AddDate(n.maxYears(), 0, 0)
}

// Format は日時を WireFormat で Normalizer のロケーションに変換して返す。
func (n *Normalizer) Format(t time.Time) string {
	return t.In(n.location()).Format(WireFormat)
}

// Now は現在時刻を返す。
func (n *Normalizer) Now() time.Time {
	if n.Clock == nil {
		return time.Now()
	}
	return n.Clock()
}

// WithMaxYears は上限年数のみを差し替えたコピーを返す。
func (n *Normalizer) WithMaxYears(years int) *Normalizer {
	c := *n
	if years > 0 {
		c.MaxYears = years
	}
	return &c
}

func (n *Normalizer) maxYears() int {
	if n.MaxYears <= 0 {
		return DefaultMaxYears
	}
	return n.MaxYears
}

func (n *Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}
