// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/hikbridge/internal/model"
)

// ErrDuplicateCode は local_code の一意制約違反を表す。
// 同時に採番した別リクエストが先に同じコードを保存した場合に返る。
var ErrDuplicateCode = errors.New("duplicate local code")

// ResidentRepository は居住者台帳の永続化インターフェース。
type ResidentRepository interface {
	// MaxCode は全レコード（削除済みを含む）の local_code の数値最大値を返す。
	// レコードが存在しない場合は0を返す。
	MaxCode(ctx context.Context) (int64, error)

	// Create は居住者を作成する。local_code が重複した場合は ErrDuplicateCode を返す。
	Create(ctx context.Context, resident *model.Resident) error

	// FindActiveByCode は有効な居住者を local_code で取得する。見つからない場合はnilを返す。
	FindActiveByCode(ctx context.Context, localCode string) (*model.Resident, error)

	// FindActiveByEmail は有効な居住者をメールアドレスで取得する。
	// 複数存在する場合は最も新しいレコードを返す。見つからない場合はnilを返す。
	FindActiveByEmail(ctx context.Context, email string) (*model.Resident, error)

	// ListActive は有効な居住者を created_at 降順で返す。
	// community が空でない場合はそのコミュニティに限定する。
	ListActive(ctx context.Context, community string) ([]*model.Resident, error)

	// MarkDeleted は居住者を論理削除する。対象が存在しない場合はfalseを返す。
	MarkDeleted(ctx context.Context, localCode string) (bool, error)
}

// SettingRepository は実行時設定（app_config）の永続化インターフェース。
type SettingRepository interface {
	// Get は指定キーの設定を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, key string) (*model.Setting, error)

	// List は全設定をキー順で返す。
	List(ctx context.Context) ([]*model.Setting, error)

	// Upsert は設定を作成または更新する。
	Upsert(ctx context.Context, setting *model.Setting) error

	// InsertIfAbsent は設定が存在しない場合のみ作成する。作成した場合はtrueを返す。
	InsertIfAbsent(ctx context.Context, setting *model.Setting) (bool, error)
}

// AuditRepository は同期監査イベント（sync_events）の永続化インターフェース。
type AuditRepository interface {
	// Insert はイベントを記録する。
	Insert(ctx context.Context, event *model.AuditEvent) error

	// ListRecent は新しい順に最大 limit 件のイベントを返す。
	ListRecent(ctx context.Context, limit int) ([]*model.AuditEvent, error)
}
