// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// NewAdminAuthMiddleware は Authorization: Bearer <token> を検証するミドルウェアを返す。
// トークンが一致しない場合は401 Unauthorizedを返す。
func NewAdminAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if token == "" || !strings.HasPrefix(auth, bearerPrefix) {
				writeUnauthorized(w)
				return
			}

			given := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
			if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				slog.Warn("admin authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
				)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
}

// ClientIP はリクエスト元のIPアドレスを返す。
// X-Forwarded-For 等の解釈は chi の RealIP ミドルウェアに任せ、ここでは RemoteAddr のみを見る。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
