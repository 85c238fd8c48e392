package hikcentral

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

const (
	testAppKey    = "23456789"
	testAppSecret = "s3cr3t"
	testNonce     = "0b4f8e3c-1d2a-4c5b-9e6f-7a8b9c0d1e2f"
	testDeleteURI = "/artemis/api/resource/v1/person/single/delete"
)

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testAppKey, testAppSecret)
	if err != nil {
		t.Fatalf("NewSigner がエラーを返した: %v", err)
	}
	s.now = func() time.Time { return testNow }
	s.newNonce = func() string { return testNonce }
	return s
}

func TestNewSigner_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		secret string
	}{
		{"キーなし", "", "secret"},
		{"シークレットなし", "key", ""},
		{"両方なし", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.key, tt.secret)
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("err = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestContentMD5(t *testing.T) {
	got := ContentMD5([]byte(`{"personId":"9001"}`))
	if got != "0bF04iwYm4YhCLDETEJQSw==" {
		t.Errorf("ContentMD5 = %q, want %q", got, "0bF04iwYm4YhCLDETEJQSw==")
	}
}

func TestSigner_Headers_WithBody(t *testing.T) {
	s := newTestSigner(t)

	h := s.Headers("admin", []byte(`{"personId":"9001"}`))

	want := map[string]string{
		"Accept":                 "application/json",
		"Content-Type":           "application/json;charset=UTF-8",
		"Content-MD5":            "0bF04iwYm4YhCLDETEJQSw==",
		"Date":                   "Wed, 01 Jan 2025 00:00:00 GMT",
		"X-Ca-Key":               testAppKey,
		"X-Ca-Nonce":             testNonce,
		"X-Ca-Timestamp":         "1735689600000",
		"X-Ca-Signature-Headers": "x-ca-key,x-ca-nonce,x-ca-timestamp",
		"userId":                 "admin",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestSigner_Headers_WithoutBody(t *testing.T) {
	s := newTestSigner(t)

	h := s.Headers("admin", nil)

	// ボディなしの場合は Content-Type・Content-MD5・Date を送らない
	for _, k := range []string{"Content-Type", "Content-MD5", "Date"} {
		if got := h.Get(k); got != "" {
			t.Errorf("header %s = %q, want empty", k, got)
		}
	}
	if h.Get("X-Ca-Key") != testAppKey {
		t.Errorf("X-Ca-Key = %q, want %q", h.Get("X-Ca-Key"), testAppKey)
	}
}

func TestSigner_StringToSign_WithBody(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", []byte(`{"personId":"9001"}`))

	got := s.StringToSign(http.MethodPost, testDeleteURI, h, true)

	want := strings.Join([]string{
		"POST",
		"application/json",
		"0bF04iwYm4YhCLDETEJQSw==",
		"application/json;charset=UTF-8",
		"Wed, 01 Jan 2025 00:00:00 GMT",
		"x-ca-key:23456789",
		"x-ca-nonce:" + testNonce,
		"x-ca-timestamp:1735689600000",
		testDeleteURI,
	}, "\n")
	if got != want {
		t.Errorf("StringToSign =\n%s\nwant\n%s", got, want)
	}
}

func TestSigner_StringToSign_BodylessPost(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", nil)

	got := s.StringToSign(http.MethodPost, PathVersion, h, false)

	// ボディなしPOSTは method, */*, x-ca-key, URI の4行のみ
	want := "POST\n*/*\nx-ca-key:23456789\n/artemis/api/common/v1/version"
	if got != want {
		t.Errorf("StringToSign = %q, want %q", got, want)
	}
}

func TestSigner_StringToSign_DefaultsWhenHeadersAbsent(t *testing.T) {
	s := newTestSigner(t)
	h := http.Header{}
	h.Set("X-Ca-Key", testAppKey)
	h.Set("X-Ca-Nonce", testNonce)
	h.Set("X-Ca-Timestamp", "1735689600000")
	h.Set("Content-MD5", "abc")

	got := s.StringToSign(http.MethodPost, "/x", h, true)
	lines := strings.Split(got, "\n")

	if len(lines) != 9 {
		t.Fatalf("line count = %d, want 9", len(lines))
	}
	if lines[1] != "*/*" {
		t.Errorf("Accept line = %q, want %q", lines[1], "*/*")
	}
	if lines[3] != "application/json" {
		t.Errorf("Content-Type line = %q, want %q", lines[3], "application/json")
	}
	if lines[4] != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("Date line = %q, want generated date", lines[4])
	}
	// 生成したDateは送信ヘッダーにも反映される
	if h.Get("Date") != lines[4] {
		t.Errorf("Date header = %q, want %q", h.Get("Date"), lines[4])
	}
}

func TestSigner_StringToSign_BodylessGetHasEmptyContentLines(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", nil)

	lines := strings.Split(s.StringToSign(http.MethodGet, "/x", h, false), "\n")

	if len(lines) != 9 {
		t.Fatalf("line count = %d, want 9", len(lines))
	}
	if lines[2] != "" || lines[3] != "" {
		t.Errorf("content lines = %q, %q, want empty", lines[2], lines[3])
	}
}

func TestSigner_Sign_KnownVector(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", []byte(`{"personId":"9001"}`))

	got := s.Sign(http.MethodPost, testDeleteURI, h, true)
	if got != "XYYGuXAkvMr03TnArxsQ0j5gK/Mz3FH/KRNii1RQlkw=" {
		t.Errorf("Sign = %q, want %q", got, "XYYGuXAkvMr03TnArxsQ0j5gK/Mz3FH/KRNii1RQlkw=")
	}
}

func TestSigner_Sign_BodylessPostKnownVector(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", nil)

	got := s.Sign(http.MethodPost, PathVersion, h, false)
	if got != "Xl8utp/IKxNlyN+AXdXqEy56BIUSnIh8EYb5ibmMJdk=" {
		t.Errorf("Sign = %q, want %q", got, "Xl8utp/IKxNlyN+AXdXqEy56BIUSnIh8EYb5ibmMJdk=")
	}
}

func TestSigner_Sign_Deterministic(t *testing.T) {
	s := newTestSigner(t)
	h := s.Headers("admin", []byte(`{"a":1}`))

	first := s.Sign(http.MethodPost, "/x", h, true)
	second := s.Sign(http.MethodPost, "/x", h.Clone(), true)
	if first != second {
		t.Errorf("同一入力で署名が異なる: %q != %q", first, second)
	}
}

func TestSigner_Sign_ChangesWithAnySignedField(t *testing.T) {
	s := newTestSigner(t)
	base := s.Headers("admin", []byte(`{"a":1}`))
	baseSig := s.Sign(http.MethodPost, "/x", base, true)

	mutations := []struct {
		name   string
		header string
		value  string
	}{
		{"Accept", "Accept", "application/jsoN"},
		{"Content-MD5", "Content-MD5", "x" + base.Get("Content-MD5")[1:]},
		{"Content-Type", "Content-Type", "application/json;charset=UTF-9"},
		{"Date", "Date", "Wed, 01 Jan 2025 00:00:01 GMT"},
		{"Nonce", "X-Ca-Nonce", testNonce[:len(testNonce)-1] + "0"},
		{"Timestamp", "X-Ca-Timestamp", "1735689600001"},
		{"Key", "X-Ca-Key", "23456780"},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			h := base.Clone()
			h.Set(m.header, m.value)
			if got := s.Sign(http.MethodPost, "/x", h, true); got == baseSig {
				t.Errorf("%s を変更しても署名が変わらない", m.name)
			}
		})
	}

	t.Run("URI", func(t *testing.T) {
		if got := s.Sign(http.MethodPost, "/y", base.Clone(), true); got == baseSig {
			t.Error("URI を変更しても署名が変わらない")
		}
	})
}
