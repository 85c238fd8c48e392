package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/hikbridge/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した同期監査イベントリポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Insert はイベントを記録する。Detail は jsonb として保存する。
func (r *PostgresAuditRepo) Insert(ctx context.Context, e *model.AuditEvent) error {
	detail := []byte("{}")
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
		detail = b
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_events (id, kind, local_code, vendor_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Kind), e.LocalCode, e.VendorID, detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}
	return nil
}

// ListRecent は新しい順に最大 limit 件のイベントを返す。
func (r *PostgresAuditRepo) ListRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, local_code, vendor_id, detail, created_at
		 FROM sync_events
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync events: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		var kind string
		var detail []byte
		if err := rows.Scan(&e.ID, &kind, &e.LocalCode, &e.VendorID, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		e.Kind = model.AuditKind(kind)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync events: %w", err)
	}
	return events, nil
}

var _ AuditRepository = (*PostgresAuditRepo)(nil)
