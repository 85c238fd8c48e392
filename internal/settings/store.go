// Package settings は実行時に変更可能な設定（app_config テーブル）を提供する。
// 読み取りはメモリキャッシュを経由し、Set は書き込みと同時にキャッシュを更新する。
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/hikbridge/internal/model"
	"github.com/hitoshi/hikbridge/internal/repository"
)

// 設定キー。
const (
	KeyBaseURL          = "HIKCENTRAL_BASE_URL"
	KeyAppKey           = "HIKCENTRAL_APP_KEY"
	KeyAppSecret        = "HIKCENTRAL_APP_SECRET"
	KeyUserID           = "HIKCENTRAL_USER_ID"
	KeyOrgIndexCode     = "HIKCENTRAL_ORG_INDEX_CODE"
	KeyVerifySSL        = "HIKCENTRAL_VERIFY_SSL"
	KeyMaxDurationYears = "MAX_RESIDENT_DURATION_YEARS"
)

// DefaultCacheTTL は設定キャッシュのデフォルト有効期間。
const DefaultCacheTTL = 10 * time.Minute

// maskedValue は秘匿値の表示用の置き換え文字列。
const maskedValue = "********"

// secretKeys は値をログ・監査・管理APIで伏せるキー。
var secretKeys = map[string]bool{
	KeyAppSecret: true,
}

// EventRecorder は設定変更の監査イベントを記録する。
type EventRecorder interface {
	Record(ctx context.Context, kind model.AuditKind, localCode, vendorID string, detail map[string]any)
}

// Store は実行時設定ストア。
// キーが app_config に無い場合はプロセスの環境変数、それも無い場合は呼び出し元のデフォルト値を使う。
type Store struct {
	repo   repository.SettingRepository
	cache  *cache.Cache
	audit  EventRecorder
	logger *slog.Logger

	lookupEnv func(string) (string, bool)
}

// NewStore はStoreを生成する。ttl が0以下の場合は DefaultCacheTTL を使用する。
func NewStore(repo repository.SettingRepository, ttl time.Duration, audit EventRecorder, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		repo:      repo,
		cache:     cache.New(ttl, 2*ttl),
		audit:     audit,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
}

// Get は設定値を文字列で返す。どこにも値が無い場合は found=false を返す。
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if cached, ok := s.cache.Get(key); ok {
		return cached.(string), true, nil
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if setting != nil {
		s.cache.Set(key, setting.Value, cache.DefaultExpiration)
		return setting.Value, true, nil
	}

	if v, ok := s.lookupEnv(key); ok {
		s.cache.Set(key, v, cache.DefaultExpiration)
		return v, true, nil
	}
	return "", false, nil
}

// String は文字列の設定値を返す。値が無い場合は def を返す。
func (s *Store) String(ctx context.Context, key, def string) (string, error) {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// Int は数値の設定値を返す。値が無い場合は def を返す。
func (s *Store) Int(ctx context.Context, key string, def int) (int, error) {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, model.NewConfigError(fmt.Sprintf("%s は数値である必要があります: %q", key, v))
	}
	return n, nil
}

// Bool は真偽値の設定値を返す。"true" 以外（大文字小文字を区別しない）は false として扱う。
// 値が無い場合は def を返す。
func (s *Store) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return def, nil
	}
	return strings.EqualFold(strings.TrimSpace(v), "true"), nil
}

// Set は設定値を保存し、キャッシュを更新する。
// 変更は config_changed 監査イベントとして記録する（秘匿値は伏せる）。
func (s *Store) Set(ctx context.Context, key, value string, typ model.SettingType, description string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.NewValidationError("key は必須です")
	}
	if typ == "" {
		typ = model.SettingTypeString
	}
	if !typ.Valid() {
		return model.NewValidationError(fmt.Sprintf("type は string, number, boolean のいずれかです: %q", typ))
	}
	normalized, err := normalizeValue(value, typ)
	if err != nil {
		return model.NewValidationError(fmt.Sprintf("%s: %v", key, err))
	}

	oldValue, _, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := s.repo.Upsert(ctx, &model.Setting{
		Key:         key,
		Value:       normalized,
		Type:        typ,
		Description: description,
	}); err != nil {
		return err
	}
	s.cache.Set(key, normalized, cache.DefaultExpiration)

	s.logger.Info("setting updated",
		slog.String("key", key),
		slog.String("type", string(typ)),
	)
	if s.audit != nil {
		s.audit.Record(ctx, model.AuditConfigChanged, "", "", map[string]any{
			"key":      key,
			"oldValue": MaskValue(key, oldValue),
			"newValue": MaskValue(key, normalized),
		})
	}
	return nil
}

// List は全設定をキー順で返す。秘匿値は伏せる。
func (s *Store) List(ctx context.Context) ([]*model.Setting, error) {
	settings, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range settings {
		st.Value = MaskValue(st.Key, st.Value)
	}
	return settings, nil
}

// Invalidate はキャッシュを全て破棄する。次回の読み取りはDBから行う。
func (s *Store) Invalidate() {
	s.cache.Flush()
	s.logger.Info("settings cache invalidated")
}

// Seed は存在しないキーのみ初期値を登録する。既存の値は上書きしない。
// 値が空の初期値は登録せず、読み取り時の環境変数フォールバックに委ねる。
func (s *Store) Seed(ctx context.Context, defaults []model.Setting) error {
	for i := range defaults {
		d := defaults[i]
		if strings.TrimSpace(d.Value) == "" {
			s.logger.Debug("setting seed skipped, empty value", slog.String("key", d.Key))
			continue
		}
		created, err := s.repo.InsertIfAbsent(ctx, &d)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", d.Key, err)
		}
		if created {
			s.logger.Info("setting seeded", slog.String("key", d.Key))
		}
	}
	return nil
}

// MaskValue は秘匿キーの値を伏せた文字列を返す。空値はそのまま返す。
func MaskValue(key, value string) string {
	if secretKeys[key] && value != "" {
		return maskedValue
	}
	return value
}

// normalizeValue は型に応じて値を検証し、保存形式に揃える。
func normalizeValue(value string, typ model.SettingType) (string, error) {
	switch typ {
	case model.SettingTypeNumber:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("数値ではありません: %q", value)
		}
		return strconv.Itoa(n), nil
	case model.SettingTypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("真偽値ではありません: %q", value)
		}
		return strconv.FormatBool(b), nil
	}
	return value, nil
}
