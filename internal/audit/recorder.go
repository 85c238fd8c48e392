// Package audit は同期監査イベントの記録と参照を提供する。
// 記録の失敗はログに残すのみで呼び出し元には返さない。
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/hikbridge/internal/model"
	"github.com/hitoshi/hikbridge/internal/repository"
)

// Recent の件数制限。
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Recorder は監査イベントを sync_events に記録する。
type Recorder struct {
	repo   repository.AuditRepository
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewRecorder はRecorderを生成する。
func NewRecorder(repo repository.AuditRepository, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Record はイベントを記録する。
func (r *Recorder) Record(ctx context.Context, kind model.AuditKind, localCode, vendorID string, detail map[string]any) {
	event := &model.AuditEvent{
		ID:        r.newID(),
		Kind:      kind,
		LocalCode: localCode,
		VendorID:  vendorID,
		Detail:    detail,
		CreatedAt: r.now(),
	}
	// リクエストのキャンセルで監査が欠落しないようにする
	if err := r.repo.Insert(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Error("failed to record sync event",
			slog.String("kind", string(kind)),
			slog.String("local_code", localCode),
			slog.String("vendor_id", vendorID),
			slog.String("error", err.Error()),
		)
	}
}

// Recent は新しい順に最大 limit 件のイベントを返す。
// limit が0以下の場合は DefaultLimit、MaxLimit を超える場合は MaxLimit に丸める。
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	events, err := r.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*model.AuditEvent{}
	}
	return events, nil
}
