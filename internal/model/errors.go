package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, resident, vendor, storage, system
	Action   string // 呼び出し元向け対処方法
	Err      error  // 原因となったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable は同一入力での再試行で成功し得るエラーかどうかを返す。
func (e *APIError) Retryable() bool {
	return e.Code == ErrCodeStorageConflict
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeDateValidation        = "DATE_VALIDATION_ERROR"
	ErrCodeResidentNotFound      = "RESIDENT_NOT_FOUND"
	ErrCodeResidentNotSynced     = "RESIDENT_NOT_SYNCED"
	ErrCodeVendorError           = "VENDOR_ERROR"
	ErrCodeVendorUnavailable     = "VENDOR_UNAVAILABLE"
	ErrCodeStorageConflict       = "STORAGE_CONFLICT"
	ErrCodeInternalInconsistency = "INTERNAL_INCONSISTENCY"
	ErrCodeConfig                = "CONFIG_ERROR"
)

// HasCode はエラーチェーン中に指定コードの APIError が含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "必須項目と値の形式を確認してください。",
	}
}

// NewDateValidationError は日付の解析・範囲検証エラーを生成する。
func NewDateValidationError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeDateValidation,
		Message:  "有効期間の指定が不正です。",
		Category: "validation",
		Action:   "from と to に ISO 8601 形式の日付を指定し、from が to 以前になるようにしてください。",
		Err:      err,
	}
}

// NewResidentNotFoundError は居住者が見つからない場合のエラーを生成する。
func NewResidentNotFoundError(localCode string) *APIError {
	return &APIError{
		Code:     ErrCodeResidentNotFound,
		Message:  fmt.Sprintf("指定された居住者が見つかりません: %s", localCode),
		Category: "resident",
		Action:   "ownerId を確認してください。",
	}
}

// NewResidentNotSyncedError は居住者がHikCentralに未同期の場合のエラーを生成する。
func NewResidentNotSyncedError(localCode string) *APIError {
	return &APIError{
		Code:     ErrCodeResidentNotSynced,
		Message:  fmt.Sprintf("居住者はHikCentralに同期されていません: %s", localCode),
		Category: "resident",
		Action:   "居住者を再登録してから再度お試しください。",
	}
}

// NewVendorError はHikCentralが業務エラーを返した場合のエラーを生成する。
func NewVendorError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeVendorError,
		Message:  "HikCentralがリクエストを拒否しました。",
		Category: "vendor",
		Action:   "HikCentral側のエラー内容を確認してください。",
		Err:      err,
	}
}

// NewVendorUnavailableError はHikCentralに到達できない場合のエラーを生成する。
func NewVendorUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeVendorUnavailable,
		Message:  "HikCentralに接続できませんでした。",
		Category: "vendor",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewStorageConflictError はローカルコードの採番が競合した場合のエラーを生成する。
func NewStorageConflictError(localCode string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageConflict,
		Message:  fmt.Sprintf("ローカルコードが競合しました: %s", localCode),
		Category: "storage",
		Action:   "再度お試しください。",
		Err:      err,
	}
}

// NewInternalInconsistencyError はHikCentral側の作成後にローカル保存が失敗した場合のエラーを生成する。
// HikCentral側に対応するローカルレコードのない person が残っている。
func NewInternalInconsistencyError(localCode, vendorID string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeInternalInconsistency,
		Message:  fmt.Sprintf("HikCentralに作成した person をローカルに保存できませんでした: code=%s personId=%s", localCode, vendorID),
		Category: "system",
		Action:   "管理者に連絡してください。",
		Err:      err,
	}
}

// NewConfigError は設定不備のエラーを生成する。
func NewConfigError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConfig,
		Message:  fmt.Sprintf("設定が不正です: %s", reason),
		Category: "system",
		Action:   "管理画面でHikCentralの接続設定を確認してください。",
	}
}
