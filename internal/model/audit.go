package model

import "time"

// AuditKind は監査イベントの種別を表す。
type AuditKind string

const (
	AuditResidentCreated       AuditKind = "resident_created"
	AuditResidentCreateFailed  AuditKind = "resident_create_failed"
	AuditResidentDeleted       AuditKind = "resident_deleted"
	AuditVendorDeleteFailed    AuditKind = "vendor_delete_failed"
	AuditInternalInconsistency AuditKind = "internal_inconsistency"
	AuditCredentialIssued      AuditKind = "credential_issued"
	AuditVisitorRegistered     AuditKind = "visitor_registered"
	AuditConfigChanged         AuditKind = "config_changed"
)

// AuditEvent はローカル台帳とHikCentralの同期に関する監査イベント。
// 運用者が手動で整合性を回復する際の手がかりとして保持する。
type AuditEvent struct {
	ID        string
	Kind      AuditKind
	LocalCode string
	VendorID  string
	Detail    map[string]any
	CreatedAt time.Time
}

// SettingType は実行時設定値の型を表す。
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeNumber  SettingType = "number"
	SettingTypeBoolean SettingType = "boolean"
)

// Valid は型が定義済みの値かどうかを返す。
func (t SettingType) Valid() bool {
	switch t {
	case SettingTypeString, SettingTypeNumber, SettingTypeBoolean:
		return true
	}
	return false
}

// Setting は app_config テーブルの1行を表す。
type Setting struct {
	Key         string
	Value       string
	Type        SettingType
	Description string
	UpdatedAt   time.Time
}
