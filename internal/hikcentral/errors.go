package hikcentral

import (
	"errors"
	"fmt"

	"github.com/hitoshi/hikbridge/internal/model"
)

// APIError はHikCentralが成功以外のエンベロープ（code != "0"）を返したことを表す。
type APIError struct {
	Path string
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hikcentral %s: code=%s msg=%s", e.Path, e.Code, e.Msg)
}

// TransportError はHikCentralからエンベロープを受け取れなかったことを表す。
// タイムアウト、接続拒否、2xx以外のステータス、解析できないボディを含む。
type TransportError struct {
	Path       string
	StatusCode int // HTTPレスポンスを受信できなかった場合は0
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hikcentral %s: http status %d: %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("hikcentral %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ToAPIError はクライアントのエラーを呼び出し元向けの model.APIError に変換する。
// 既に model.APIError の場合はそのまま返す。
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *model.APIError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var vendorErr *APIError
	if errors.As(err, &vendorErr) {
		return model.NewVendorError(vendorErr)
	}

	if errors.Is(err, ErrMissingCredentials) {
		apiErr := model.NewConfigError("HikCentralのAppKey/AppSecretが設定されていません")
		apiErr.Err = err
		return apiErr
	}

	return model.NewVendorUnavailableError(err)
}
