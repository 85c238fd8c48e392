package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/hikbridge/internal/model"
)

// SettingsServiceInterface は管理ハンドラーが必要とする設定ストアのインターフェース。
type SettingsServiceInterface interface {
	// List は全設定を返す。秘匿値は伏せ字になっている。
	List(ctx context.Context) ([]*model.Setting, error)
	// Set は設定を更新する。
	Set(ctx context.Context, key, value string, typ model.SettingType, description string) error
	// Invalidate は設定キャッシュを破棄する。
	Invalidate()
}

// EventLister は最近の監査イベントを返す。
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error)
}

// AdminHandler は管理APIのHTTPハンドラー。
type AdminHandler struct {
	settings SettingsServiceInterface
	events   EventLister
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(settings SettingsServiceInterface, events EventLister) *AdminHandler {
	return &AdminHandler{
		settings: settings,
		events:   events,
	}
}

// updateConfigRequest は設定更新リクエストのボディ。
type updateConfigRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// settingResponse は設定1件のAPIレスポンス。
type settingResponse struct {
	Value       string    `json:"value"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// eventResponse は監査イベント1件のAPIレスポンス。
type eventResponse struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	OwnerID   string         `json:"ownerId,omitempty"`
	PersonID  string         `json:"personId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// GetConfig は全設定を返す。
// GET /admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	config := make(map[string]settingResponse, len(settings))
	for _, s := range settings {
		config[s.Key] = settingResponse{
			Value:       s.Value,
			Type:        string(s.Type),
			Description: s.Description,
			UpdatedAt:   s.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  config,
	})
}

// UpdateConfig は設定を1件更新する。
// PUT /admin/config
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeValidationError(w, "key は必須です")
		return
	}
	typ := model.SettingType(req.Type)
	if typ == "" {
		typ = model.SettingTypeString
	}

	if err := h.settings.Set(r.Context(), key, req.Value, typ, req.Description); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "設定を更新しました。",
	})
}

// ReloadConfig は設定キャッシュを破棄し、次回の読み取りでDBから再取得させる。
// POST /admin/config/reload
func (h *AdminHandler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	h.settings.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "設定キャッシュを破棄しました。",
	})
}

// ListEvents は最近の同期監査イベントを返す。
// GET /admin/events?limit=
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidationError(w, "limit は0以上の整数で指定してください")
			return
		}
		limit = n
	}

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]eventResponse, len(events))
	for i, e := range events {
		resp[i] = eventResponse{
			ID:        e.ID,
			Kind:      string(e.Kind),
			OwnerID:   e.LocalCode,
			PersonID:  e.VendorID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"events":  resp,
	})
}
