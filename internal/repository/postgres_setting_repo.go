package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hikbridge/internal/model"
)

// PostgresSettingRepo はPostgreSQLを使用した実行時設定リポジトリ。
type PostgresSettingRepo struct {
	db *sql.DB
}

// NewPostgresSettingRepo はPostgresSettingRepoを生成する。
func NewPostgresSettingRepo(db *sql.DB) *PostgresSettingRepo {
	return &PostgresSettingRepo{db: db}
}

// Get は指定キーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresSettingRepo) Get(ctx context.Context, key string) (*model.Setting, error) {
	s := &model.Setting{}
	var typ string
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, type, description, updated_at FROM app_config WHERE key = $1`,
		key,
	).Scan(&s.Key, &s.Value, &typ, &s.Description, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	s.Type = model.SettingType(typ)
	return s, nil
}

// List は全設定をキー順で返す。
func (r *PostgresSettingRepo) List(ctx context.Context) ([]*model.Setting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value, type, description, updated_at FROM app_config ORDER BY key`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*model.Setting
	for rows.Next() {
		s := &model.Setting{}
		var typ string
		if err := rows.Scan(&s.Key, &s.Value, &typ, &s.Description, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		s.Type = model.SettingType(typ)
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings: %w", err)
	}
	return settings, nil
}

// Upsert は設定を作成または更新する。
func (r *PostgresSettingRepo) Upsert(ctx context.Context, s *model.Setting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_config (key, value, type, description, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value,
		     type = EXCLUDED.type,
		     description = COALESCE(NULLIF(EXCLUDED.description, ''), app_config.description),
		     updated_at = now()`,
		s.Key, s.Value, string(s.Type), s.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", s.Key, err)
	}
	return nil
}

// InsertIfAbsent は設定が存在しない場合のみ作成する。作成した場合はtrueを返す。
func (r *PostgresSettingRepo) InsertIfAbsent(ctx context.Context, s *model.Setting) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO app_config (key, value, type, description, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (key) DO NOTHING`,
		s.Key, s.Value, string(s.Type), s.Description,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed setting %s: %w", s.Key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var _ SettingRepository = (*PostgresSettingRepo)(nil)
