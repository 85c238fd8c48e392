package daterange

import (
	"errors"
	"testing"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

func TestNormalize_WithinLimit(t *testing.T) {
	n := New(10, jst)

	r, err := n.Normalize("2025-01-01", "2026-01-01")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.Adjusted {
		t.Error("上限内の期間が切り詰められている")
	}
	if r.From != "2025-01-01T00:00:00+09:00" || r.To != "2026-01-01T00:00:00+09:00" {
		t.Errorf("Range = %+v", r)
	}
	if r.OriginalFrom != "" || r.OriginalTo != "" || r.Reason != "" {
		t.Errorf("切り詰めなしなのに元の値が設定されている: %+v", r)
	}
}

func TestNormalize_ClampsToMaxYears(t *testing.T) {
	n := New(10, jst)

	// Jane Doe: 2025-01-01 から 2036-06-01 は10年を超える
	r, err := n.Normalize("2025-01-01", "2036-06-01")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if !r.Adjusted {
		t.Fatal("Adjusted = false, want true")
	}
	if r.From != "2025-01-01T00:00:00+09:00" {
		t.Errorf("From = %q", r.From)
	}
	if r.To != "2035-01-01T00:00:00+09:00" {
		t.Errorf("To = %q, want 2035-01-01T00:00:00+09:00", r.To)
	}
	if r.OriginalFrom != "2025-01-01T00:00:00+09:00" || r.OriginalTo != "2036-06-01T00:00:00+09:00" {
		t.Errorf("Original = %q..%q", r.OriginalFrom, r.OriginalTo)
	}
	if r.Reason == "" {
		t.Error("Reason が空")
	}
}

func TestNormalize_ExactlyAtLimitIsNotAdjusted(t *testing.T) {
	n := New(10, jst)

	r, err := n.Normalize("2025-03-15T08:30:00+09:00", "2035-03-15T08:30:00+09:00")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.Adjusted {
		t.Errorf("ちょうど上限の期間が切り詰められている: %+v", r)
	}
}

func TestNormalize_KeepsTimeOfDayWhenClamping(t *testing.T) {
	n := New(2, jst)

	r, err := n.Normalize("2025-03-15T08:30:00+09:00", "2030-01-01T00:00:00+09:00")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.To != "2027-03-15T08:30:00+09:00" {
		t.Errorf("To = %q, want 2027-03-15T08:30:00+09:00", r.To)
	}
}

func TestNormalize_ConvertsToLocation(t *testing.T) {
	n := New(10, jst)

	r, err := n.Normalize("2025-01-01T00:00:00Z", "2025-06-01T12:00:00.250Z")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.From != "2025-01-01T09:00:00+09:00" {
		t.Errorf("From = %q, want 2025-01-01T09:00:00+09:00", r.From)
	}
	if r.To != "2025-06-01T21:00:00+09:00" {
		t.Errorf("To = %q, want 2025-06-01T21:00:00+09:00", r.To)
	}
}

func TestNormalize_LocalDateTimeWithoutOffset(t *testing.T) {
	n := New(10, jst)

	r, err := n.Normalize("2025-01-01T10:00:00", "2025-01-02T10:00")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.From != "2025-01-01T10:00:00+09:00" || r.To != "2025-01-02T10:00:00+09:00" {
		t.Errorf("Range = %+v", r)
	}
}

func TestNormalize_InvalidDate(t *testing.T) {
	n := New(10, jst)

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"from が空", "", "2025-01-01"},
		{"to が空", "2025-01-01", ""},
		{"不正な形式", "01/02/2025", "2025-01-01"},
		{"存在しない日付", "2025-02-30", "2025-03-01"},
		{"文字列", "2025-01-01", "tomorrow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.from, tt.to)
			if !errors.Is(err, ErrInvalidDate) {
				t.Errorf("err = %v, want ErrInvalidDate", err)
			}
		})
	}
}

func TestNormalize_FromAfterTo(t *testing.T) {
	n := New(10, jst)

	_, err := n.Normalize("2025-02-01", "2025-01-01")
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestNormalize_SameInstantIsValid(t *testing.T) {
	n := New(10, jst)

	r, err := n.Normalize("2025-01-01", "2025-01-01T00:00:00+09:00")
	if err != nil {
		t.Fatalf("Normalize がエラーを返した: %v", err)
	}
	if r.From != r.To {
		t.Errorf("From = %q, To = %q, want equal", r.From, r.To)
	}
}

func TestNew_Defaults(t *testing.T) {
	n := New(0, nil)
	if n.MaxYears != DefaultMaxYears {
		t.Errorf("MaxYears = %d, want %d", n.MaxYears, DefaultMaxYears)
	}
	if n.Location != time.Local {
		t.Error("Location が time.Local でない")
	}
}

func TestWithMaxYears(t *testing.T) {
	n := New(10, jst)

	c := n.WithMaxYears(1)
	if c.MaxYears != 1 || n.MaxYears != 10 {
		t.Errorf("MaxYears = %d (copy), %d (original)", c.MaxYears, n.MaxYears)
	}
	if got := n.WithMaxYears(0).MaxYears; got != 10 {
		t.Errorf("0指定時の MaxYears = %d, want 10", got)
	}
}

func TestFormat(t *testing.T) {
	n := New(10, jst)

	got := n.Format(time.Date(2025, 1, 1, 15, 0, 1, 0, time.UTC))
	if got != "2025-01-02T00:00:01+09:00" {
		t.Errorf("Format = %q, want 2025-01-02T00:00:01+09:00", got)
	}
}

func TestNow_UsesClock(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(10, jst)
	n.Clock = func() time.Time { return fixed }

	if !n.Now().Equal(fixed) {
		t.Errorf("Now = %v, want %v", n.Now(), fixed)
	}
}
