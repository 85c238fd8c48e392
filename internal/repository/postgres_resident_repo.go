package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/hikbridge/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

// PostgresResidentRepo はPostgreSQLを使用した居住者リポジトリ。
type PostgresResidentRepo struct {
	db *sql.DB
}

// NewPostgresResidentRepo はPostgresResidentRepoを生成する。
func NewPostgresResidentRepo(db *sql.DB) *PostgresResidentRepo {
	return &PostgresResidentRepo{db: db}
}

const residentColumns = `local_code, vendor_id, name, email, phone, community, unit_id, kind,
	valid_from, valid_to, status, created_at, updated_at`

// MaxCode は全レコード（削除済みを含む）の local_code の数値最大値を返す。
// 数値として解釈できないコードは対象外とする。
func (r *PostgresResidentRepo) MaxCode(ctx context.Context) (int64, error) {
	var maxCode int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(local_code AS BIGINT)), 0)
		 FROM residents
		 WHERE local_code ~ '^[0-9]+$'`,
	).Scan(&maxCode)
	if err != nil {
		return 0, fmt.Errorf("failed to query max local code: %w", err)
	}
	return maxCode, nil
}

// Create は居住者を作成する。local_code が重複した場合は ErrDuplicateCode を返す。
// CreatedAt・UpdatedAt がゼロ値の場合は現在時刻を設定してから保存する。
func (r *PostgresResidentRepo) Create(ctx context.Context, res *model.Resident) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = res.CreatedAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO residents (`+residentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		res.LocalCode, res.VendorID, res.Name, res.Email, res.Phone, res.Community, res.UnitID,
		string(res.Kind), res.ValidFrom, res.ValidTo, string(res.Status), res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return fmt.Errorf("failed to insert resident %s: %w", res.LocalCode, ErrDuplicateCode)
		}
		return fmt.Errorf("failed to insert resident: %w", err)
	}
	return nil
}

// FindActiveByCode は有効な居住者を local_code で取得する。見つからない場合はnilを返す。
func (r *PostgresResidentRepo) FindActiveByCode(ctx context.Context, localCode string) (*model.Resident, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+residentColumns+`
		 FROM residents
		 WHERE local_code = $1 AND status = 'active'`,
		localCode,
	)
	res, err := scanResident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resident by code: %w", err)
	}
	return res, nil
}

// FindActiveByEmail は有効な居住者をメールアドレスで取得する。見つからない場合はnilを返す。
func (r *PostgresResidentRepo) FindActiveByEmail(ctx context.Context, email string) (*model.Resident, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+residentColumns+`
		 FROM residents
		 WHERE email = $1 AND status = 'active'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email,
	)
	res, err := scanResident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resident by email: %w", err)
	}
	return res, nil
}

// ListActive は有効な居住者を created_at 降順で返す。
func (r *PostgresResidentRepo) ListActive(ctx context.Context, community string) ([]*model.Resident, error) {
	query := `SELECT ` + residentColumns + `
		 FROM residents
		 WHERE status = 'active'`
	var args []any
	if community != "" {
		query += ` AND community = $1`
		args = append(args, community)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	defer rows.Close()

	var residents []*model.Resident
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		residents = append(residents, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate residents: %w", err)
	}
	return residents, nil
}

// MarkDeleted は居住者を論理削除する。有効なレコードが存在しない場合はfalseを返す。
func (r *PostgresResidentRepo) MarkDeleted(ctx context.Context, localCode string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE residents SET status = 'deleted', updated_at = now()
		 WHERE local_code = $1 AND status = 'active'`,
		localCode,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark resident deleted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResident(s rowScanner) (*model.Resident, error) {
	res := &model.Resident{}
	var vendorID sql.NullString
	var kind, status string
	err := s.Scan(
		&res.LocalCode, &vendorID, &res.Name, &res.Email, &res.Phone, &res.Community, &res.UnitID,
		&kind, &res.ValidFrom, &res.ValidTo, &status, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		v := vendorID.String
		res.VendorID = &v
	}
	res.Kind = model.ResidentKind(kind)
	res.Status = model.ResidentStatus(status)
	return res, nil
}

var _ ResidentRepository = (*PostgresResidentRepo)(nil)
