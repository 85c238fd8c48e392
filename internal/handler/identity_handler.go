package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/hikbridge/internal/identity"
)

// IdentityServiceInterface はQRクレデンシャル発行ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	IssueResidentCredential(ctx context.Context, localCode, unitID string) (*identity.ResidentCredential, error)
	IssueVisitorCredential(ctx context.Context, in identity.VisitorInput) (*identity.VisitorCredential, error)
}

// DateParser は visitDate の形式検証に使う日付パーサー。
type DateParser interface {
	Parse(s string) (time.Time, error)
}

// VersionProber はHikCentralへの疎通確認を行う。
type VersionProber interface {
	Version(ctx context.Context) (json.RawMessage, error)
}

// IdentityHandler はQRクレデンシャル発行とHikCentral疎通確認のHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
	dates   DateParser
	prober  VersionProber
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface, dates DateParser, prober VersionProber) *IdentityHandler {
	return &IdentityHandler{
		service: service,
		dates:   dates,
		prober:  prober,
	}
}

// residentCredentialResponse は居住者QRのAPIレスポンス。
type residentCredentialResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	OwnerType string `json:"ownerType"`
	UnitID    string `json:"unitId"`
	QRCode    string `json:"qrCode"`
}

// visitorCredentialResponse は来訪者QRのAPIレスポンス。
type visitorCredentialResponse struct {
	VisitID     string `json:"visitId"`
	UnitID      string `json:"unitId"`
	OwnerID     string `json:"ownerId"`
	OwnerType   string `json:"ownerType"`
	VisitorName string `json:"visitorName"`
	VisitDate   string `json:"visitDate"`
	QRCode      string `json:"qrCode"`
}

// versionResponse はHikCentral疎通確認のAPIレスポンス。
type versionResponse struct {
	Success   bool            `json:"success"`
	Connected bool            `json:"connected"`
	Version   json.RawMessage `json:"version,omitempty"`
	Message   string          `json:"message"`
	Error     string          `json:"error,omitempty"`
}

// GetIdentity は居住者の動的QRコードを発行する。
// GET /api/identity?unitId=&ownerId=
func (h *IdentityHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	unitID, ownerID, ok := ownerParams(w, r)
	if !ok {
		return
	}

	cred, err := h.service.IssueResidentCredential(r.Context(), ownerID, unitID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, residentCredentialResponse{
		ID:        cred.ID,
		OwnerID:   cred.OwnerID,
		OwnerType: string(cred.OwnerType),
		UnitID:    cred.UnitID,
		QRCode:    cred.QRCode,
	})
}

// GetVisitorQR は来訪予約を登録し、来訪者用QRを返す。
// GET /api/visitor-qr?unitId=&ownerId=&visitorName=&visitDate=
func (h *IdentityHandler) GetVisitorQR(w http.ResponseWriter, r *http.Request) {
	unitID, ownerID, ok := ownerParams(w, r)
	if !ok {
		return
	}

	visitDate := strings.TrimSpace(r.URL.Query().Get("visitDate"))
	if visitDate == "" {
		writeValidationError(w, "visitDate は必須です")
		return
	}
	if _, err := h.dates.Parse(visitDate); err != nil {
		writeValidationError(w, "visitDate はISO 8601形式で指定してください")
		return
	}

	cred, err := h.service.IssueVisitorCredential(r.Context(), identity.VisitorInput{
		LocalCode:   ownerID,
		UnitID:      unitID,
		VisitorName: r.URL.Query().Get("visitorName"),
		VisitDate:   visitDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, visitorCredentialResponse{
		VisitID:     cred.VisitID,
		UnitID:      cred.UnitID,
		OwnerID:     cred.OwnerID,
		OwnerType:   string(cred.OwnerType),
		VisitorName: cred.VisitorName,
		VisitDate:   cred.VisitDate,
		QRCode:      cred.QRCode,
	})
}

// GetVersion はHikCentralのバージョン情報を取得し、接続状態を返す。
// 接続できない場合も200で connected=false を返す。
// GET /api/hikcentral/version, GET /admin/test
func (h *IdentityHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	data, err := h.prober.Version(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, versionResponse{
			Success:   false,
			Connected: false,
			Message:   "HikCentralに接続できませんでした。",
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, versionResponse{
		Success:   true,
		Connected: true,
		Version:   data,
		Message:   "HikCentralに接続しました。",
	})
}

// ownerParams は unitId と ownerId のクエリパラメータを検証して返す。
func ownerParams(w http.ResponseWriter, r *http.Request) (unitID, ownerID string, ok bool) {
	unitID = strings.TrimSpace(r.URL.Query().Get("unitId"))
	ownerID = strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if unitID == "" || ownerID == "" {
		writeValidationError(w, "unitId と ownerId は必須です")
		return "", "", false
	}
	if len(unitID) > maxIDLength || len(ownerID) > maxIDLength {
		writeValidationError(w, "unitId と ownerId は50文字以下で指定してください")
		return "", "", false
	}
	return unitID, ownerID, true
}
