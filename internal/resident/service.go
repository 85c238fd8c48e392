// Package resident はローカル居住者台帳とHikCentralの person を同期するドメインロジックを提供する。
//
// 作成は「ローカルコード採番 → HikCentral作成 → ローカル保存」の順に行い、
// HikCentralが受け付けなかった場合はローカルに何も書き込まない。
package resident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/hikbridge/internal/daterange"
	"github.com/hitoshi/hikbridge/internal/hikcentral"
	"github.com/hitoshi/hikbridge/internal/metrics"
	"github.com/hitoshi/hikbridge/internal/model"
	"github.com/hitoshi/hikbridge/internal/repository"
	"github.com/hitoshi/hikbridge/internal/security"
	"github.com/hitoshi/hikbridge/internal/settings"
)

// DefaultCreateAttempts は CreateWithRetry のデフォルト試行回数。
const DefaultCreateAttempts = 3

// metrics の operation ラベル。
const (
	opCreate = "create"
	opDelete = "delete"
)

var phonePattern = regexp.MustCompile(`^[+]?[\d\s\-()]{7,20}$`)

// VendorClient は居住者同期に必要なHikCentral操作。
type VendorClient interface {
	AddPerson(ctx context.Context, req hikcentral.PersonAddRequest) (string, error)
	DeletePerson(ctx context.Context, personID string) error
}

// SettingsReader は作成時に参照する実行時設定。
type SettingsReader interface {
	String(ctx context.Context, key, def string) (string, error)
	MaxDurationYears(ctx context.Context) (int, error)
}

// Auditor は同期監査イベントを記録する。
type Auditor interface {
	Record(ctx context.Context, kind model.AuditKind, localCode, vendorID string, detail map[string]any)
}

// CreateInput は居住者作成の入力。
type CreateInput struct {
	Name      string
	Email     string
	Phone     string
	Community string
	From      string
	To        string
	Kind      string
	UnitID    string
}

// DateAdjustment は有効期間が上限に切り詰められた場合の詳細。
type DateAdjustment struct {
	OriginalFrom string
	OriginalTo   string
	AdjustedFrom string
	AdjustedTo   string
	Reason       string
}

// CreateResult は居住者作成の結果。
type CreateResult struct {
	Resident       *model.Resident
	DateAdjustment *DateAdjustment // 切り詰めがない場合はnil
}

// Query は居住者検索の条件。LocalCode、Email の順に優先し、どちらも空なら一覧を返す。
// Community が空でない場合はそのコミュニティに限定する。
type Query struct {
	LocalCode string
	Email     string
	Community string
}

// View は呼び出し元に返す居住者情報。
type View struct {
	LocalCode string
	VendorID  string
	Name      string
	Email     string
	Phone     string
	Community string
	UnitID    string
	Kind      model.ResidentKind
	ValidFrom string
	ValidTo   string
	Synced    bool
}

// Service は居住者同期のサービス層。
type Service struct {
	repo       repository.ResidentRepository
	vendor     VendorClient
	settings   SettingsReader
	normalizer *daterange.Normalizer
	sanitizer  security.TextSanitizer
	audit      Auditor
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ResidentRepository,
	vendor VendorClient,
	settingsReader SettingsReader,
	normalizer *daterange.Normalizer,
	sanitizer security.TextSanitizer,
	audit Auditor,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		repo:       repo,
		vendor:     vendor,
		settings:   settingsReader,
		normalizer: normalizer,
		sanitizer:  sanitizer,
		audit:      audit,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
	}
}

// Create は居住者をHikCentralに作成し、成功した場合のみローカルに保存する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	result, err := s.create(ctx, in)
	s.metrics.RecordSyncOperation(opCreate, metrics.ResultCode(err))
	return result, err
}

func (s *Service) create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in, kind, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	maxCode, err := s.repo.MaxCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("ローカルコードの採番に失敗しました: %w", err)
	}
	localCode := strconv.FormatInt(maxCode+1, 10)

	years, err := s.settings.MaxDurationYears(ctx)
	if err != nil {
		return nil, err
	}
	dates, err := s.normalizer.WithMaxYears(years).Normalize(in.From, in.To)
	if err != nil {
		return nil, model.NewDateValidationError(err)
	}

	orgIndexCode, err := s.settings.String(ctx, settings.KeyOrgIndexCode, "1")
	if err != nil {
		return nil, err
	}

	family, given := hikcentral.SplitName(in.Name)
	s.logger.Info("creating resident in hikcentral",
		slog.String("local_code", localCode),
		slog.String("community", in.Community),
		slog.String("unit_id", in.UnitID),
	)

	vendorID, err := s.vendor.AddPerson(ctx, hikcentral.PersonAddRequest{
		PersonCode:       localCode,
		PersonFamilyName: family,
		PersonGivenName:  given,
		Gender:           hikcentral.GenderUnknown,
		OrgIndexCode:     orgIndexCode,
		PhoneNo:          in.Phone,
		Email:            in.Email,
		BeginTime:        dates.From,
		EndTime:          dates.To,
	})
	if err != nil {
		apiErr := hikcentral.ToAPIError(err)
		s.logger.Error("failed to create resident in hikcentral",
			slog.String("local_code", localCode),
			slog.String("error", err.Error()),
		)
		s.audit.Record(ctx, model.AuditResidentCreateFailed, localCode, "", map[string]any{
			"error": err.Error(),
		})
		return nil, apiErr
	}

	now := s.now()
	res := &model.Resident{
		LocalCode: localCode,
		VendorID:  &vendorID,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Community: in.Community,
		UnitID:    in.UnitID,
		Kind:      kind,
		ValidFrom: dates.From,
		ValidTo:   dates.To,
		Status:    model.ResidentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, res); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, s.rollbackConflict(ctx, localCode, vendorID, err)
		}
		s.logger.Error("resident created in hikcentral but not persisted locally",
			slog.String("local_code", localCode),
			slog.String("vendor_id", vendorID),
			slog.String("error", err.Error()),
		)
		s.audit.Record(ctx, model.AuditInternalInconsistency, localCode, vendorID, map[string]any{
			"error": err.Error(),
		})
		return nil, model.NewInternalInconsistencyError(localCode, vendorID, err)
	}

	s.audit.Record(ctx, model.AuditResidentCreated, localCode, vendorID, map[string]any{
		"community": in.Community,
		"unitId":    in.UnitID,
		"adjusted":  dates.Adjusted,
	})
	s.logger.Info("resident created",
		slog.String("local_code", localCode),
		slog.String("vendor_id", vendorID),
	)

	result := &CreateResult{Resident: res}
	if dates.Adjusted {
		result.DateAdjustment = &DateAdjustment{
			OriginalFrom: dates.OriginalFrom,
			OriginalTo:   dates.OriginalTo,
			AdjustedFrom: dates.From,
			AdjustedTo:   dates.To,
			Reason:       dates.Reason,
		}
	}
	return result, nil
}

// rollbackConflict は採番競合で保存できなかった person をHikCentralから削除する。
// 削除に失敗した場合も STORAGE_CONFLICT を返し、孤立した person は監査イベントに残す。
func (s *Service) rollbackConflict(ctx context.Context, localCode, vendorID string, cause error) error {
	s.logger.Warn("local code conflict, removing vendor person",
		slog.String("local_code", localCode),
		slog.String("vendor_id", vendorID),
	)
	if err := s.vendor.DeletePerson(ctx, vendorID); err != nil {
		s.logger.Error("failed to remove vendor person after local code conflict",
			slog.String("local_code", localCode),
			slog.String("vendor_id", vendorID),
			slog.String("error", err.Error()),
		)
		s.audit.Record(ctx, model.AuditInternalInconsistency, localCode, vendorID, map[string]any{
			"error":  err.Error(),
			"reason": "local code conflict",
		})
	}
	return model.NewStorageConflictError(localCode, cause)
}

// CreateWithRetry は STORAGE_CONFLICT の場合のみ、採番からやり直して最大 attempts 回まで Create を試行する。
// attempts が0以下の場合は DefaultCreateAttempts を使用する。
func (s *Service) CreateWithRetry(ctx context.Context, in CreateInput, attempts int) (*CreateResult, error) {
	if attempts <= 0 {
		attempts = DefaultCreateAttempts
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var result *CreateResult
		result, err = s.Create(ctx, in)
		if err == nil {
			return result, nil
		}
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}
		s.logger.Warn("retrying resident creation after local code conflict",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
		)
	}
	return nil, err
}

// Get は条件に一致する有効な居住者を返す。該当がない場合は空スライスを返す。
func (s *Service) Get(ctx context.Context, q Query) ([]View, error) {
	var (
		residents []*model.Resident
		err       error
	)

	switch {
	case q.LocalCode != "":
		var r *model.Resident
		r, err = s.repo.FindActiveByCode(ctx, q.LocalCode)
		if r != nil {
			residents = append(residents, r)
		}
	case q.Email != "":
		var r *model.Resident
		r, err = s.repo.FindActiveByEmail(ctx, strings.TrimSpace(q.Email))
		if r != nil {
			residents = append(residents, r)
		}
	default:
		residents, err = s.repo.ListActive(ctx, q.Community)
	}
	if err != nil {
		return nil, fmt.Errorf("居住者の取得に失敗しました: %w", err)
	}

	views := make([]View, 0, len(residents))
	for _, r := range residents {
		if q.Community != "" && r.Community != q.Community {
			continue
		}
		views = append(views, ToView(r))
	}
	return views, nil
}

// Delete は居住者を論理削除する。
// HikCentral側の削除はベストエフォートで、失敗してもローカルの削除は行う。
func (s *Service) Delete(ctx context.Context, localCode string) error {
	err := s.delete(ctx, localCode)
	s.metrics.RecordSyncOperation(opDelete, metrics.ResultCode(err))
	return err
}

func (s *Service) delete(ctx context.Context, localCode string) error {
	if strings.TrimSpace(localCode) == "" {
		return model.NewValidationError("ownerId は必須です")
	}

	r, err := s.repo.FindActiveByCode(ctx, localCode)
	if err != nil {
		return fmt.Errorf("居住者の取得に失敗しました: %w", err)
	}
	if r == nil {
		return model.NewResidentNotFoundError(localCode)
	}

	var vendorID string
	if r.Synced() {
		vendorID = *r.VendorID
		if err := s.vendor.DeletePerson(ctx, vendorID); err != nil {
			s.logger.Warn("failed to delete person in hikcentral, continuing with local delete",
				slog.String("local_code", localCode),
				slog.String("vendor_id", vendorID),
				slog.String("error", err.Error()),
			)
			s.audit.Record(ctx, model.AuditVendorDeleteFailed, localCode, vendorID, map[string]any{
				"error": err.Error(),
			})
		}
	}

	deleted, err := s.repo.MarkDeleted(ctx, localCode)
	if err != nil {
		return fmt.Errorf("居住者の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewResidentNotFoundError(localCode)
	}

	s.audit.Record(ctx, model.AuditResidentDeleted, localCode, vendorID, nil)
	s.logger.Info("resident deleted",
		slog.String("local_code", localCode),
		slog.String("vendor_id", vendorID),
	)
	return nil
}

// validate は入力を検証し、自由入力項目をサニタイズした値を返す。
func (s *Service) validate(in CreateInput) (CreateInput, model.ResidentKind, error) {
	in.Name = s.sanitizer.Sanitize(in.Name)
	in.Community = s.sanitizer.Sanitize(in.Community)
	in.UnitID = s.sanitizer.Sanitize(in.UnitID)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)

	if n := utf8.RuneCountInString(in.Name); n < 2 || n > 100 {
		return in, "", model.NewValidationError("name は2文字以上100文字以下で指定してください")
	}
	if in.Email == "" {
		return in, "", model.NewValidationError("email は必須です")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return in, "", model.NewValidationError(fmt.Sprintf("email の形式が不正です: %q", in.Email))
	}
	if in.UnitID == "" {
		return in, "", model.NewValidationError("unitId は必須です")
	}
	if utf8.RuneCountInString(in.UnitID) > 50 || utf8.RuneCountInString(in.Community) > 50 {
		return in, "", model.NewValidationError("unitId と community は50文字以下で指定してください")
	}
	if in.Phone != "" && !phonePattern.MatchString(in.Phone) {
		return in, "", model.NewValidationError(fmt.Sprintf("phone の形式が不正です: %q", in.Phone))
	}

	kind := model.ResidentKindResident
	if in.Kind != "" {
		kind = model.ResidentKind(in.Kind)
		if !kind.Valid() {
			return in, "", model.NewValidationError(fmt.Sprintf("type が不正です: %q", in.Kind))
		}
	}
	return in, kind, nil
}

// ToView は台帳レコードを呼び出し元向けの View に変換する。
func ToView(r *model.Resident) View {
	v := View{
		LocalCode: r.LocalCode,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Community: r.Community,
		UnitID:    r.UnitID,
		Kind:      r.Kind,
		ValidFrom: r.ValidFrom,
		ValidTo:   r.ValidTo,
		Synced:    r.Synced(),
	}
	if r.VendorID != nil {
		v.VendorID = *r.VendorID
	}
	return v
}
