// Package model はドメインモデルを定義する。
package model

import "time"

// ResidentKind は居住者の種別を表す。
type ResidentKind string

const (
	ResidentKindResident     ResidentKind = "resident"
	ResidentKindTenant       ResidentKind = "tenant"
	ResidentKindFamilyMember ResidentKind = "family_member"
	ResidentKindStaff        ResidentKind = "staff"
	ResidentKindVisitor      ResidentKind = "visitor"
)

// Valid は種別が定義済みの値かどうかを返す。
func (k ResidentKind) Valid() bool {
	switch k {
	case ResidentKindResident, ResidentKindTenant, ResidentKindFamilyMember,
		ResidentKindStaff, ResidentKindVisitor:
		return true
	}
	return false
}

// ResidentStatus は居住者レコードの状態を表す。
// 削除は論理削除のみで、物理削除は行わない。
type ResidentStatus string

const (
	ResidentStatusActive  ResidentStatus = "active"
	ResidentStatusDeleted ResidentStatus = "deleted"
)

// Resident はローカル居住者台帳の1レコードを表す。
// LocalCode は外部公開用の識別子（ownerId）で、HikCentral側の personCode としても使用する。
// VendorID はHikCentralが採番した personId。nil の場合は未同期。
type Resident struct {
	LocalCode string
	VendorID  *string
	Name      string
	Email     string
	Phone     string
	Community string
	UnitID    string
	Kind      ResidentKind
	ValidFrom string // HikCentral形式（2006-01-02T15:04:05-07:00）
	ValidTo   string
	Status    ResidentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Synced はHikCentral側に対応するpersonが存在するかを返す。
func (r *Resident) Synced() bool {
	return r.VendorID != nil && *r.VendorID != ""
}
