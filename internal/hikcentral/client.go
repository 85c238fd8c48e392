// Package hikcentral はHikCentral Professional（Artemis OpenAPI）連携機能を提供する。
// リクエスト署名、エンベロープの解釈、person・QRコード・来訪者の各APIを含む。
package hikcentral

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/hikbridge/internal/metrics"
)

// DefaultTimeout はHikCentral API呼び出しのデフォルトタイムアウト。
const DefaultTimeout = 10 * time.Second

// Credentials はHikCentralへの接続情報。呼び出しごとに設定ストアから取得する。
type Credentials struct {
	AppKey       string
	AppSecret    string
	BaseURL      string
	UserID       string
	OrgIndexCode string
	VerifySSL    bool
}

// CredentialsProvider は最新の接続情報を返す。
// 設定不備の場合は model.APIError（CONFIG_ERROR）を返す。
type CredentialsProvider interface {
	VendorCredentials(ctx context.Context) (Credentials, error)
}

// Client はHikCentral APIのクライアント。
// リトライは行わず、再試行の判断は呼び出し元に委ねる。
type Client struct {
	creds   CredentialsProvider
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	secure   *resty.Client
	insecure *resty.Client
	warnOnce sync.Once

	// テスト用に差し替え可能
	now      func() time.Time
	newNonce func() string
}

// NewClient はClientを生成する。timeout が0以下の場合は DefaultTimeout を使用する。
func NewClient(creds CredentialsProvider, timeout time.Duration, mc metrics.MetricsCollector, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Client{
		creds:    creds,
		metrics:  mc,
		logger:   logger,
		secure:   resty.New().SetTimeout(timeout),
		insecure: resty.New().SetTimeout(timeout).SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}),
	}
}

// envelope はHikCentral APIの共通レスポンス形式。
type envelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// success は code が文字列 "0" または数値 0 の場合に true を返す。
func (e *envelope) success() bool {
	code := string(bytes.TrimSpace(e.Code))
	return code == `"0"` || code == "0"
}

func (e *envelope) codeString() string {
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return string(e.Code)
}

// Call はHikCentral APIを呼び出し、成功時はエンベロープの data を返す。
// data が無い場合はレスポンスボディ全体を返す。
// method が空の場合、body があればPOST、なければGETとする。
func (c *Client) Call(ctx context.Context, path string, body any, method string) (json.RawMessage, error) {
	creds, err := c.creds.VendorCredentials(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := NewSigner(creds.AppKey, creds.AppSecret)
	if err != nil {
		return nil, err
	}
	if c.now != nil {
		signer.now = c.now
	}
	if c.newNonce != nil {
		signer.newNonce = c.newNonce
	}

	// ハッシュ計算と送信に同一のバイト列を使う
	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
	}

	if method == "" {
		method = http.MethodGet
		if payload != nil {
			method = http.MethodPost
		}
	}

	headers := signer.Headers(creds.UserID, payload)
	headers.Set("X-Ca-Signature", signer.Sign(method, path, headers, payload != nil))

	rc := c.secure
	if !creds.VerifySSL {
		c.warnOnce.Do(func() {
			c.logger.Warn("TLS certificate verification is disabled for HikCentral",
				slog.String("base_url", creds.BaseURL),
			)
		})
		rc = c.insecure
	}

	req := rc.R().SetContext(ctx).SetHeaderMultiValues(headers)
	if payload != nil {
		req.SetBody(payload)
	}

	url := strings.TrimRight(creds.BaseURL, "/") + path
	c.logger.Debug("hikcentral request",
		slog.String("method", method),
		slog.String("url", url),
	)

	start := time.Now()
	resp, err := req.Execute(method, url)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordVendorCall(path, metrics.OutcomeTransportError, elapsed)
		c.logger.Error("hikcentral connection failed",
			slog.String("path", path),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Path: path, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.metrics.RecordVendorCall(path, metrics.OutcomeTransportError, elapsed)
		c.logger.Error("hikcentral returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode()),
		)
		return nil, &TransportError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil || len(env.Code) == 0 {
		c.metrics.RecordVendorCall(path, metrics.OutcomeTransportError, elapsed)
		if err == nil {
			err = errors.New("response has no code field")
		}
		c.logger.Error("hikcentral response could not be decoded",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Path: path, StatusCode: resp.StatusCode(), Err: err}
	}

	if !env.success() {
		c.metrics.RecordVendorCall(path, metrics.OutcomeVendorError, elapsed)
		c.logger.Warn("hikcentral api error",
			slog.String("path", path),
			slog.String("code", env.codeString()),
			slog.String("msg", env.Msg),
		)
		return nil, &APIError{Path: path, Code: env.codeString(), Msg: env.Msg}
	}

	c.metrics.RecordVendorCall(path, metrics.OutcomeSuccess, elapsed)
	c.logger.Debug("hikcentral response",
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode()),
	)

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return json.RawMessage(resp.Body()), nil
	}
	return json.RawMessage(data), nil
}
