package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// HikCentralの接続情報は実行時設定ストア（app_config）の初期値としてのみ使用する。
type Config struct {
	// Database
	DatabaseURL string

	// Admin
	AdminAPIToken string

	// Server
	ServerPort string

	// Logging
	LogLevel string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int

	// Vendor
	VendorTimeout time.Duration

	// Settings
	SettingsCacheTTL time.Duration

	// Audit
	AuditRetentionDays int

	// HikCentral seed values
	HikCentralBaseURL      string
	HikCentralAppKey       string
	HikCentralAppSecret    string
	HikCentralUserID       string
	HikCentralOrgIndexCode string
	HikCentralVerifySSL    bool
	MaxResidentYears       int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	if cfg.AdminAPIToken == "" {
		missing = append(missing, "ADMIN_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100)
	cfg.VendorTimeout = getEnvDuration("VENDOR_TIMEOUT", 10*time.Second)
	cfg.SettingsCacheTTL = getEnvDuration("SETTINGS_CACHE_TTL", 10*time.Minute)
	cfg.AuditRetentionDays = getEnvInt("AUDIT_RETENTION_DAYS", 90)

	cfg.HikCentralBaseURL = getEnvString("HIKCENTRAL_BASE_URL", "")
	cfg.HikCentralAppKey = getEnvString("HIKCENTRAL_APP_KEY", "")
	cfg.HikCentralAppSecret = getEnvString("HIKCENTRAL_APP_SECRET", "")
	cfg.HikCentralUserID = getEnvString("HIKCENTRAL_USER_ID", "admin")
	cfg.HikCentralOrgIndexCode = getEnvString("HIKCENTRAL_ORG_INDEX_CODE", "1")
	cfg.HikCentralVerifySSL = getEnvBool("HIKCENTRAL_VERIFY_SSL", false)
	cfg.MaxResidentYears = getEnvInt("MAX_RESIDENT_DURATION_YEARS", 10)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
