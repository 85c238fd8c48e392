// Package cleanup は同期監査イベント（sync_events）の保持期間切れ削除ジョブを提供する。
// cleanup サブコマンドから1回実行する想定で、繰り返し実行しても結果は変わらない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultRetentionDays は監査イベントのデフォルト保持日数。
	DefaultRetentionDays = 90
	// DefaultBatchSize は1回のDELETEで削除する最大件数。
	DefaultBatchSize = 5000
)

const deleteExpiredQuery = `DELETE FROM sync_events
WHERE id IN (
    SELECT id FROM sync_events
    WHERE created_at < $1
    ORDER BY created_at
    LIMIT $2
)`

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過した監査イベントをバッチ単位で削除する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
	BatchSize     int

	now func() time.Time
}

// NewCleanupJob はCleanupJobを生成する。retentionDays が0以下の場合は DefaultRetentionDays を使用する。
func NewCleanupJob(db Executor, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
		BatchSize:     DefaultBatchSize,
		now:           time.Now,
	}
}

// Cutoff はこの時刻より前に作成されたイベントが削除対象となる境界時刻を返す。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.RetentionDays)
}

// Run は Cutoff より古いイベントを BatchSize 件ずつ削除し、合計削除件数を返す。
// 削除件数が BatchSize 未満になった時点で終了する。ctx がキャンセルされた場合は
// それまでの削除件数とエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.Cutoff()
	batchSize := j.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("監査イベントの削除が中断されました: %w", err)
		}

		result, err := j.db.ExecContext(ctx, deleteExpiredQuery, cutoff, batchSize)
		if err != nil {
			j.logger.Error("sync event cleanup failed",
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
				slog.Int64("deleted_count", total),
			)
			return total, fmt.Errorf("監査イベントの削除に失敗: %w", err)
		}

		deleted, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("削除件数の取得に失敗: %w", err)
		}
		total += deleted
		batches++

		if deleted < int64(batchSize) {
			break
		}
		j.logger.Debug("sync event cleanup batch", slog.Int("batch", batches), slog.Int64("deleted", deleted))
	}

	j.logger.Info("sync event cleanup completed",
		slog.Int64("deleted_count", total),
		slog.Int("batches", batches),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return total, nil
}
