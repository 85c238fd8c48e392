package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/hikbridge/internal/resident"
)

// ResidentServiceInterface は居住者ハンドラーが必要とするサービスインターフェース。
type ResidentServiceInterface interface {
	// CreateWithRetry はローカルコード競合時に採番からやり直して居住者を作成する。
	CreateWithRetry(ctx context.Context, in resident.CreateInput, attempts int) (*resident.CreateResult, error)
	// Get は条件に一致する有効な居住者を返す。
	Get(ctx context.Context, q resident.Query) ([]resident.View, error)
	// Delete は居住者を論理削除する。
	Delete(ctx context.Context, localCode string) error
}

// ResidentHandler は居住者管理のHTTPハンドラー。
type ResidentHandler struct {
	service        ResidentServiceInterface
	createAttempts int
}

// NewResidentHandler はResidentHandlerを生成する。
func NewResidentHandler(service ResidentServiceInterface) *ResidentHandler {
	return &ResidentHandler{
		service:        service,
		createAttempts: resident.DefaultCreateAttempts,
	}
}

// createResidentRequest は居住者作成リクエストのボディ。
type createResidentRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Community string `json:"community"`
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	UnitID    string `json:"unitId"`
}

// residentResponse は居住者情報のAPIレスポンス。
type residentResponse struct {
	OwnerID   string `json:"ownerId"`
	PersonID  string `json:"personId,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Community string `json:"community"`
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	UnitID    string `json:"unitId"`
	Synced    bool   `json:"synced"`
}

// dateAdjustmentResponse は有効期間切り詰めの詳細。
type dateAdjustmentResponse struct {
	OriginalFrom string `json:"originalFrom"`
	OriginalTo   string `json:"originalTo"`
	AdjustedFrom string `json:"adjustedFrom"`
	AdjustedTo   string `json:"adjustedTo"`
	Reason       string `json:"reason"`
}

// createResidentResponse は居住者作成のAPIレスポンス。
type createResidentResponse struct {
	residentResponse
	HikCentralPersonID string                  `json:"hikCentralPersonId"`
	DateAdjustment     *dateAdjustmentResponse `json:"dateAdjustment,omitempty"`
}

// ListResidents は居住者を検索する。
// GET /api/residents?ownerId=&email=&community=
func (h *ResidentHandler) ListResidents(w http.ResponseWriter, r *http.Request) {
	q := resident.Query{
		LocalCode: strings.TrimSpace(r.URL.Query().Get("ownerId")),
		Email:     strings.TrimSpace(r.URL.Query().Get("email")),
		Community: strings.TrimSpace(r.URL.Query().Get("community")),
	}
	if len(q.LocalCode) > maxIDLength || len(q.Community) > maxIDLength {
		writeValidationError(w, "ownerId と community は50文字以下で指定してください")
		return
	}

	views, err := h.service.Get(r.Context(), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]residentResponse, len(views))
	for i, v := range views {
		resp[i] = toResidentResponse(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateResident は居住者を作成し、HikCentralに同期する。
// POST /api/residents
func (h *ResidentHandler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var req createResidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	result, err := h.service.CreateWithRetry(r.Context(), resident.CreateInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Community: req.Community,
		From:      req.From,
		To:        req.To,
		Kind:      req.Type,
		UnitID:    req.UnitID,
	}, h.createAttempts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	view := resident.ToView(result.Resident)

	resp := createResidentResponse{
		residentResponse:   toResidentResponse(view),
		HikCentralPersonID: view.VendorID,
	}
	if adj := result.DateAdjustment; adj != nil {
		resp.DateAdjustment = &dateAdjustmentResponse{
			OriginalFrom: adj.OriginalFrom,
			OriginalTo:   adj.OriginalTo,
			AdjustedFrom: adj.AdjustedFrom,
			AdjustedTo:   adj.AdjustedTo,
			Reason:       adj.Reason,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteResident は居住者を削除する。
// DELETE /api/residents?ownerId=
func (h *ResidentHandler) DeleteResident(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if ownerID == "" || len(ownerID) > maxIDLength {
		writeValidationError(w, "ownerId は必須で、50文字以下で指定してください")
		return
	}

	if err := h.service.Delete(r.Context(), ownerID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func toResidentResponse(v resident.View) residentResponse {
	return residentResponse{
		OwnerID:   v.LocalCode,
		PersonID:  v.VendorID,
		Name:      v.Name,
		Email:     v.Email,
		Phone:     v.Phone,
		Community: v.Community,
		Type:      string(v.Kind),
		From:      v.ValidFrom,
		To:        v.ValidTo,
		UnitID:    v.UnitID,
		Synced:    v.Synced,
	}
}
