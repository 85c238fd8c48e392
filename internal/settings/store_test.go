package settings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/hikbridge/internal/config"
	"github.com/hitoshi/hikbridge/internal/model"
)

// --- モック定義 ---

// mockSettingRepo はSettingRepositoryのメモリ上の実装。呼び出し回数を記録する。
type mockSettingRepo struct {
	data     map[string]*model.Setting
	getCalls int
	getErr   error
}

func newMockSettingRepo(settings ...model.Setting) *mockSettingRepo {
	r := &mockSettingRepo{data: map[string]*model.Setting{}}
	for i := range settings {
		s := settings[i]
		r.data[s.Key] = &s
	}
	return r
}

func (m *mockSettingRepo) Get(ctx context.Context, key string) (*model.Setting, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *mockSettingRepo) List(ctx context.Context) ([]*model.Setting, error) {
	var out []*model.Setting
	for _, k := range []string{KeyAppKey, KeyAppSecret, KeyBaseURL, KeyVerifySSL} {
		if s, ok := m.data[k]; ok {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockSettingRepo) Upsert(ctx context.Context, setting *model.Setting) error {
	c := *setting
	m.data[setting.Key] = &c
	return nil
}

func (m *mockSettingRepo) InsertIfAbsent(ctx context.Context, setting *model.Setting) (bool, error) {
	if _, ok := m.data[setting.Key]; ok {
		return false, nil
	}
	c := *setting
	m.data[setting.Key] = &c
	return true, nil
}

// recordedEvent は記録された監査イベント。
type recordedEvent struct {
	kind   model.AuditKind
	detail map[string]any
}

type mockRecorder struct {
	events []recordedEvent
}

func (m *mockRecorder) Record(ctx context.Context, kind model.AuditKind, localCode, vendorID string, detail map[string]any) {
	m.events = append(m.events, recordedEvent{kind: kind, detail: detail})
}

func newTestStore(repo *mockSettingRepo, rec *mockRecorder) *Store {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	var audit EventRecorder
	if rec != nil {
		audit = rec
	}
	s := NewStore(repo, 0, audit, logger)
	s.lookupEnv = func(string) (string, bool) { return "", false }
	return s
}

// --- テスト ---

func TestStore_Get_CachesRepositoryValue(t *testing.T) {
	repo := newMockSettingRepo(model.Setting{Key: KeyUserID, Value: "operator"})
	s := newTestStore(repo, nil)

	for i := 0; i < 3; i++ {
		v, err := s.String(context.Background(), KeyUserID, "admin")
		if err != nil {
			t.Fatalf("String がエラーを返した: %v", err)
		}
		if v != "operator" {
			t.Errorf("value = %q, want operator", v)
		}
	}
	if repo.getCalls != 1 {
		t.Errorf("repo.Get 呼び出し回数 = %d, want 1", repo.getCalls)
	}
}

func TestStore_Get_FallsBackToEnvThenDefault(t *testing.T) {
	repo := newMockSettingRepo()
	s := newTestStore(repo, nil)
	s.lookupEnv = func(key string) (string, bool) {
		if key == KeyOrgIndexCode {
			return "7", true
		}
		return "", false
	}

	v, err := s.String(context.Background(), KeyOrgIndexCode, "1")
	if err != nil || v != "7" {
		t.Errorf("String(env) = %q, %v, want 7", v, err)
	}

	v, err = s.String(context.Background(), KeyUserID, "admin")
	if err != nil || v != "admin" {
		t.Errorf("String(default) = %q, %v, want admin", v, err)
	}
}

func TestStore_Get_RepositoryError(t *testing.T) {
	repo := newMockSettingRepo()
	repo.getErr = errors.New("connection refused")
	s := newTestStore(repo, nil)

	if _, _, err := s.Get(context.Background(), KeyAppKey); err == nil {
		t.Fatal("Get がエラーを返さなかった")
	}
}

func TestStore_Int(t *testing.T) {
	repo := newMockSettingRepo(
		model.Setting{Key: "GOOD", Value: "12", Type: model.SettingTypeNumber},
		model.Setting{Key: "BAD", Value: "twelve", Type: model.SettingTypeNumber},
	)
	s := newTestStore(repo, nil)

	n, err := s.Int(context.Background(), "GOOD", 1)
	if err != nil || n != 12 {
		t.Errorf("Int(GOOD) = %d, %v, want 12", n, err)
	}

	n, err = s.Int(context.Background(), "MISSING", 5)
	if err != nil || n != 5 {
		t.Errorf("Int(MISSING) = %d, %v, want 5", n, err)
	}

	_, err = s.Int(context.Background(), "BAD", 1)
	if !model.HasCode(err, model.ErrCodeConfig) {
		t.Errorf("Int(BAD) err = %v, want CONFIG_ERROR", err)
	}
}

func TestStore_Bool(t *testing.T) {
	repo := newMockSettingRepo(
		model.Setting{Key: "T", Value: "TRUE"},
		model.Setting{Key: "F", Value: "false"},
		model.Setting{Key: "X", Value: "yes"},
	)
	s := newTestStore(repo, nil)
	ctx := context.Background()

	tests := []struct {
		key  string
		def  bool
		want bool
	}{
		{"T", false, true},
		{"F", true, false},
		{"X", true, false},
		{"MISSING", true, true},
	}
	for _, tt := range tests {
		got, err := s.Bool(ctx, tt.key, tt.def)
		if err != nil {
			t.Fatalf("Bool(%s) がエラーを返した: %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Bool(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestStore_Set_WritesThroughAndAudits(t *testing.T) {
	repo := newMockSettingRepo(model.Setting{Key: KeyAppSecret, Value: "old-secret"})
	rec := &mockRecorder{}
	s := newTestStore(repo, rec)
	ctx := context.Background()

	// 旧値をキャッシュに載せておく
	if _, err := s.String(ctx, KeyAppSecret, ""); err != nil {
		t.Fatalf("String がエラーを返した: %v", err)
	}

	if err := s.Set(ctx, KeyAppSecret, "new-secret", model.SettingTypeString, "secret"); err != nil {
		t.Fatalf("Set がエラーを返した: %v", err)
	}

	v, _ := s.String(ctx, KeyAppSecret, "")
	if v != "new-secret" {
		t.Errorf("Set後の値 = %q, want new-secret", v)
	}
	if repo.data[KeyAppSecret].Value != "new-secret" {
		t.Errorf("リポジトリの値 = %q, want new-secret", repo.data[KeyAppSecret].Value)
	}

	if len(rec.events) != 1 || rec.events[0].kind != model.AuditConfigChanged {
		t.Fatalf("監査イベント = %+v, want 1件の config_changed", rec.events)
	}
	d := rec.events[0].detail
	if d["key"] != KeyAppSecret || d["oldValue"] != maskedValue || d["newValue"] != maskedValue {
		t.Errorf("監査詳細 = %v, want masked values", d)
	}
}

func TestStore_Set_NormalizesTypedValues(t *testing.T) {
	repo := newMockSettingRepo()
	s := newTestStore(repo, &mockRecorder{})
	ctx := context.Background()

	if err := s.Set(ctx, KeyMaxDurationYears, " 05 ", model.SettingTypeNumber, ""); err != nil {
		t.Fatalf("Set がエラーを返した: %v", err)
	}
	if got := repo.data[KeyMaxDurationYears].Value; got != "5" {
		t.Errorf("number の保存値 = %q, want 5", got)
	}

	if err := s.Set(ctx, KeyVerifySSL, "TRUE", model.SettingTypeBoolean, ""); err != nil {
		t.Fatalf("Set がエラーを返した: %v", err)
	}
	if got := repo.data[KeyVerifySSL].Value; got != "true" {
		t.Errorf("boolean の保存値 = %q, want true", got)
	}
}

func TestStore_Set_Validation(t *testing.T) {
	s := newTestStore(newMockSettingRepo(), &mockRecorder{})
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
		typ   model.SettingType
	}{
		{"キーなし", " ", "v", model.SettingTypeString},
		{"不明な型", "K", "v", model.SettingType("json")},
		{"数値でない", "K", "abc", model.SettingTypeNumber},
		{"真偽値でない", "K", "maybe", model.SettingTypeBoolean},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Set(ctx, tt.key, tt.value, tt.typ, "")
			if !model.HasCode(err, model.ErrCodeValidation) {
				t.Errorf("err = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestStore_Invalidate(t *testing.T) {
	repo := newMockSettingRepo(model.Setting{Key: KeyUserID, Value: "a"})
	s := newTestStore(repo, nil)
	ctx := context.Background()

	s.String(ctx, KeyUserID, "")
	// DBを直接書き換えた場合、Invalidate までは古い値が返る
	repo.data[KeyUserID].Value = "b"

	v, _ := s.String(ctx, KeyUserID, "")
	if v != "a" {
		t.Errorf("Invalidate前の値 = %q, want a", v)
	}

	s.Invalidate()

	v, _ = s.String(ctx, KeyUserID, "")
	if v != "b" {
		t.Errorf("Invalidate後の値 = %q, want b", v)
	}
}

func TestStore_List_MasksSecrets(t *testing.T) {
	repo := newMockSettingRepo(
		model.Setting{Key: KeyAppKey, Value: "23456789"},
		model.Setting{Key: KeyAppSecret, Value: "s3cr3t"},
	)
	s := newTestStore(repo, nil)

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	got := map[string]string{}
	for _, st := range list {
		got[st.Key] = st.Value
	}
	if got[KeyAppKey] != "23456789" {
		t.Errorf("%s = %q, want 23456789", KeyAppKey, got[KeyAppKey])
	}
	if got[KeyAppSecret] != maskedValue {
		t.Errorf("%s = %q, want masked", KeyAppSecret, got[KeyAppSecret])
	}
	if repo.data[KeyAppSecret].Value != "s3cr3t" {
		t.Error("List がリポジトリの値を書き換えた")
	}
}

func TestStore_Seed_DoesNotOverwrite(t *testing.T) {
	repo := newMockSettingRepo(model.Setting{Key: KeyAppKey, Value: "existing"})
	s := newTestStore(repo, nil)

	cfg := &config.Config{
		HikCentralBaseURL:      "https://192.168.1.101/artemis",
		HikCentralAppKey:       "from-env",
		HikCentralAppSecret:    "secret",
		HikCentralUserID:       "admin",
		HikCentralOrgIndexCode: "1",
		MaxResidentYears:       10,
	}
	if err := s.Seed(context.Background(), Defaults(cfg)); err != nil {
		t.Fatalf("Seed がエラーを返した: %v", err)
	}

	if repo.data[KeyAppKey].Value != "existing" {
		t.Errorf("既存値が上書きされた: %q", repo.data[KeyAppKey].Value)
	}
	if repo.data[KeyVerifySSL].Value != "false" || repo.data[KeyVerifySSL].Type != model.SettingTypeBoolean {
		t.Errorf("%s = %+v", KeyVerifySSL, repo.data[KeyVerifySSL])
	}
	if repo.data[KeyMaxDurationYears].Value != "10" {
		t.Errorf("%s = %q, want 10", KeyMaxDurationYears, repo.data[KeyMaxDurationYears].Value)
	}
}

func TestStore_Seed_SkipsEmptyValues(t *testing.T) {
	repo := newMockSettingRepo()
	s := newTestStore(repo, nil)
	s.lookupEnv = func(key string) (string, bool) {
		if key == KeyBaseURL {
			return "https://hcp.example.com/artemis", true
		}
		return "", false
	}

	cfg := &config.Config{HikCentralAppKey: "from-env", MaxResidentYears: 10}
	if err := s.Seed(context.Background(), Defaults(cfg)); err != nil {
		t.Fatalf("Seed がエラーを返した: %v", err)
	}

	for _, key := range []string{KeyBaseURL, KeyAppSecret, KeyUserID, KeyOrgIndexCode} {
		if _, ok := repo.data[key]; ok {
			t.Errorf("空の初期値 %s が登録された", key)
		}
	}
	if repo.data[KeyAppKey] == nil || repo.data[KeyAppKey].Value != "from-env" {
		t.Errorf("%s = %+v, want from-env", KeyAppKey, repo.data[KeyAppKey])
	}

	// 登録されなかったキーは環境変数から読める
	got, err := s.String(context.Background(), KeyBaseURL, "")
	if err != nil {
		t.Fatalf("String がエラーを返した: %v", err)
	}
	if got != "https://hcp.example.com/artemis" {
		t.Errorf("%s = %q, want env value", KeyBaseURL, got)
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue(KeyAppSecret, ""); got != "" {
		t.Errorf("空のシークレット = %q, want empty", got)
	}
	if got := MaskValue(KeyAppKey, "k"); got != "k" {
		t.Errorf("非秘匿キー = %q, want k", got)
	}
}
