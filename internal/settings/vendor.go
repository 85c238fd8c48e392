package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/hikbridge/internal/config"
	"github.com/hitoshi/hikbridge/internal/daterange"
	"github.com/hitoshi/hikbridge/internal/hikcentral"
	"github.com/hitoshi/hikbridge/internal/model"
	"github.com/hitoshi/hikbridge/internal/security"
)

// VendorCredentials は最新のHikCentral接続情報を返す。
// AppKey・AppSecret・ベースURLのいずれかが未設定、またはベースURLが不正な場合は CONFIG_ERROR を返す。
func (s *Store) VendorCredentials(ctx context.Context) (hikcentral.Credentials, error) {
	values := make(map[string]string, 5)
	for _, k := range []struct{ key, def string }{
		{KeyBaseURL, ""},
		{KeyAppKey, ""},
		{KeyAppSecret, ""},
		{KeyUserID, "admin"},
		{KeyOrgIndexCode, "1"},
	} {
		v, err := s.String(ctx, k.key, k.def)
		if err != nil {
			return hikcentral.Credentials{}, readError(k.key, err)
		}
		values[k.key] = strings.TrimSpace(v)
	}

	verify, err := s.Bool(ctx, KeyVerifySSL, false)
	if err != nil {
		return hikcentral.Credentials{}, readError(KeyVerifySSL, err)
	}

	var missing []string
	for _, key := range []string{KeyBaseURL, KeyAppKey, KeyAppSecret} {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return hikcentral.Credentials{}, model.NewConfigError(fmt.Sprintf("必須の設定が未設定です: %s", strings.Join(missing, ", ")))
	}

	base, err := security.NormalizeBaseURL(values[KeyBaseURL])
	if err != nil {
		apiErr := model.NewConfigError(fmt.Sprintf("%s が不正です", KeyBaseURL))
		apiErr.Err = err
		return hikcentral.Credentials{}, apiErr
	}

	return hikcentral.Credentials{
		AppKey:       values[KeyAppKey],
		AppSecret:    values[KeyAppSecret],
		BaseURL:      base,
		UserID:       values[KeyUserID],
		OrgIndexCode: values[KeyOrgIndexCode],
		VerifySSL:    verify,
	}, nil
}

// MaxDurationYears は居住者の有効期間の上限年数を返す。
// 未設定または1未満の場合は daterange.DefaultMaxYears を返す。
func (s *Store) MaxDurationYears(ctx context.Context) (int, error) {
	n, err := s.Int(ctx, KeyMaxDurationYears, daterange.DefaultMaxYears)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return daterange.DefaultMaxYears, nil
	}
	return n, nil
}

// Defaults は起動時設定から app_config の初期値を組み立てる。
func Defaults(cfg *config.Config) []model.Setting {
	return []model.Setting{
		{Key: KeyBaseURL, Value: cfg.HikCentralBaseURL, Type: model.SettingTypeString, Description: "HikCentral base URL"},
		{Key: KeyAppKey, Value: cfg.HikCentralAppKey, Type: model.SettingTypeString, Description: "HikCentral app key"},
		{Key: KeyAppSecret, Value: cfg.HikCentralAppSecret, Type: model.SettingTypeString, Description: "HikCentral app secret"},
		{Key: KeyUserID, Value: cfg.HikCentralUserID, Type: model.SettingTypeString, Description: "HikCentral user ID"},
		{Key: KeyOrgIndexCode, Value: cfg.HikCentralOrgIndexCode, Type: model.SettingTypeString, Description: "HikCentral organization index code"},
		{Key: KeyVerifySSL, Value: strconv.FormatBool(cfg.HikCentralVerifySSL), Type: model.SettingTypeBoolean, Description: "HikCentral SSL verification"},
		{Key: KeyMaxDurationYears, Value: strconv.Itoa(cfg.MaxResidentYears), Type: model.SettingTypeNumber, Description: "Maximum resident duration in years"},
	}
}

func readError(key string, err error) error {
	apiErr := model.NewConfigError(fmt.Sprintf("%s を読み込めませんでした", key))
	apiErr.Err = err
	return apiErr
}

var _ hikcentral.CredentialsProvider = (*Store)(nil)
