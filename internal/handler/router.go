// Package handler はHTTPエンドポイントとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/hikbridge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string

	// インフラ
	HealthChecker  Pinger
	MetricsHandler http.Handler

	// 居住者
	ResidentService ResidentServiceInterface

	// クレデンシャル
	IdentityService IdentityServiceInterface
	DateParser      DateParser
	VersionProber   VersionProber

	// 管理
	SettingsService SettingsServiceInterface
	EventLister     EventLister
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → SecurityHeaders → CORS → (RateLimit | AdminAuth)
//
// /health と /metrics はレート制限・認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	residentHandler := NewResidentHandler(deps.ResidentService)
	identityHandler := NewIdentityHandler(deps.IdentityService, deps.DateParser, deps.VersionProber)
	adminHandler := NewAdminHandler(deps.SettingsService, deps.EventLister)

	// --- インフラ ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker).Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 公開API ---
	// ミドルウェアスタック: RateLimit（クライアントIP単位）
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/residents", func(r chi.Router) {
			r.Get("/", residentHandler.ListResidents)
			r.Post("/", residentHandler.CreateResident)
			r.Delete("/", residentHandler.DeleteResident)
		})

		r.Get("/identity", identityHandler.GetIdentity)
		r.Get("/visitor-qr", identityHandler.GetVisitorQR)
		r.Get("/hikcentral/version", identityHandler.GetVersion)
	})

	// --- 管理API ---
	// ミドルウェアスタック: AdminAuth（Bearerトークン）
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))

		r.Get("/config", adminHandler.GetConfig)
		r.Put("/config", adminHandler.UpdateConfig)
		r.Post("/config/reload", adminHandler.ReloadConfig)
		r.Get("/events", adminHandler.ListEvents)
		r.Get("/test", identityHandler.GetVersion)
	})

	return r
}
