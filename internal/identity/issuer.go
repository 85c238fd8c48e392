// Package identity は居住者・来訪者向けのQRクレデンシャル発行を提供する。
// QRコードはHikCentralのみが発行でき、ローカル台帳は参照するだけで変更しない。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/hikbridge/internal/daterange"
	"github.com/hitoshi/hikbridge/internal/hikcentral"
	"github.com/hitoshi/hikbridge/internal/metrics"
	"github.com/hitoshi/hikbridge/internal/model"
	"github.com/hitoshi/hikbridge/internal/qrdecode"
	"github.com/hitoshi/hikbridge/internal/repository"
	"github.com/hitoshi/hikbridge/internal/security"
)

// 来訪予約の時間枠。開始は現在時刻の1分後、期間は24時間。
const (
	visitStartDelay = time.Minute
	visitDuration   = 24 * time.Hour
)

// metrics の operation ラベル。
const (
	opResidentCredential = "resident_credential"
	opVisitorCredential  = "visitor_credential"
)

// VendorClient はクレデンシャル発行に必要なHikCentral操作。
type VendorClient interface {
	DynamicQRCode(ctx context.Context, req hikcentral.DynamicQRRequest) (string, error)
	RegisterVisitor(ctx context.Context, req hikcentral.VisitorRegisterRequest) (hikcentral.VisitorRegistration, error)
}

// Auditor は同期監査イベントを記録する。
type Auditor interface {
	Record(ctx context.Context, kind model.AuditKind, localCode, vendorID string, detail map[string]any)
}

// ResidentCredential は居住者の動的QRクレデンシャル。
type ResidentCredential struct {
	ID        string
	OwnerID   string
	OwnerType model.ResidentKind
	UnitID    string
	QRCode    string
}

// VisitorInput は来訪者クレデンシャル発行の入力。
// VisitDate は応答にそのまま返すのみで、予約の時間枠には影響しない。
type VisitorInput struct {
	LocalCode   string
	UnitID      string
	VisitorName string
	VisitDate   string
}

// VisitorCredential は来訪者のQRクレデンシャル。
type VisitorCredential struct {
	VisitID     string
	UnitID      string
	OwnerID     string
	OwnerType   model.ResidentKind
	VisitorName string
	VisitDate   string
	QRCode      string
}

// Issuer はQRクレデンシャルの発行者。
type Issuer struct {
	repo       repository.ResidentRepository
	vendor     VendorClient
	decoder    qrdecode.Decoder
	normalizer *daterange.Normalizer
	sanitizer  security.TextSanitizer
	audit      Auditor
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewIssuer はIssuerの新しいインスタンスを生成する。
func NewIssuer(
	repo repository.ResidentRepository,
	vendor VendorClient,
	decoder qrdecode.Decoder,
	normalizer *daterange.Normalizer,
	sanitizer security.TextSanitizer,
	audit Auditor,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Issuer {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Issuer{
		repo:       repo,
		vendor:     vendor,
		decoder:    decoder,
		normalizer: normalizer,
		sanitizer:  sanitizer,
		audit:      audit,
		metrics:    mc,
		logger:     logger,
	}
}

// IssueResidentCredential は居住者の動的QRコードを発行する。
// HikCentralへのリクエストは作成時に personCode として登録したローカルコードで行う。
func (i *Issuer) IssueResidentCredential(ctx context.Context, localCode, unitID string) (*ResidentCredential, error) {
	cred, err := i.issueResident(ctx, localCode, unitID)
	i.metrics.RecordSyncOperation(opResidentCredential, metrics.ResultCode(err))
	return cred, err
}

func (i *Issuer) issueResident(ctx context.Context, localCode, unitID string) (*ResidentCredential, error) {
	if strings.TrimSpace(localCode) == "" || strings.TrimSpace(unitID) == "" {
		return nil, model.NewValidationError("ownerId と unitId は必須です")
	}

	r, err := i.activeSynced(ctx, localCode)
	if err != nil {
		return nil, err
	}

	qr, err := i.vendor.DynamicQRCode(ctx, hikcentral.NewDynamicQRRequest(r.LocalCode))
	if err != nil {
		i.logger.Error("failed to issue resident credential",
			slog.String("local_code", localCode),
			slog.String("error", err.Error()),
		)
		return nil, hikcentral.ToAPIError(err)
	}

	i.audit.Record(ctx, model.AuditCredentialIssued, r.LocalCode, *r.VendorID, map[string]any{
		"unitId": r.UnitID,
	})
	i.logger.Info("resident credential issued", slog.String("local_code", r.LocalCode))

	return &ResidentCredential{
		ID:        r.LocalCode,
		OwnerID:   r.LocalCode,
		OwnerType: r.Kind,
		UnitID:    r.UnitID,
		QRCode:    qr,
	}, nil
}

// IssueVisitorCredential は居住者をホストとする来訪予約を登録し、来訪者用QRを返す。
// QR画像を読み取れない場合は "VISITOR_<appointRecordId>" を返す。
func (i *Issuer) IssueVisitorCredential(ctx context.Context, in VisitorInput) (*VisitorCredential, error) {
	cred, err := i.issueVisitor(ctx, in)
	i.metrics.RecordSyncOperation(opVisitorCredential, metrics.ResultCode(err))
	return cred, err
}

func (i *Issuer) issueVisitor(ctx context.Context, in VisitorInput) (*VisitorCredential, error) {
	in.VisitorName = i.sanitizer.Sanitize(in.VisitorName)
	if strings.TrimSpace(in.LocalCode) == "" || strings.TrimSpace(in.UnitID) == "" {
		return nil, model.NewValidationError("ownerId と unitId は必須です")
	}
	if n := utf8.RuneCountInString(in.VisitorName); n < 2 || n > 100 {
		return nil, model.NewValidationError("visitorName は2文字以上100文字以下で指定してください")
	}

	host, err := i.activeSynced(ctx, in.LocalCode)
	if err != nil {
		return nil, err
	}

	start := i.normalizer.Now().Add(visitStartDelay)
	end := start.Add(visitDuration)

	reg, err := i.vendor.RegisterVisitor(ctx, hikcentral.VisitorRegisterRequest{
		ReceptionistID: *host.VendorID,
		VisitStartTime: i.normalizer.Format(start),
		VisitEndTime:   i.normalizer.Format(end),
		VisitorName:    in.VisitorName,
	})
	if err != nil {
		i.logger.Error("failed to register visitor",
			slog.String("local_code", in.LocalCode),
			slog.String("error", err.Error()),
		)
		return nil, hikcentral.ToAPIError(err)
	}

	qr := i.visitorQRText(reg)

	i.audit.Record(ctx, model.AuditVisitorRegistered, host.LocalCode, *host.VendorID, map[string]any{
		"appointRecordId": reg.AppointRecordID,
		"visitorName":     in.VisitorName,
	})
	i.logger.Info("visitor registered",
		slog.String("local_code", host.LocalCode),
		slog.String("appoint_record_id", reg.AppointRecordID),
	)

	return &VisitorCredential{
		VisitID:     reg.AppointRecordID,
		UnitID:      in.UnitID,
		OwnerID:     host.LocalCode,
		OwnerType:   host.Kind,
		VisitorName: in.VisitorName,
		VisitDate:   in.VisitDate,
		QRCode:      qr,
	}, nil
}

// activeSynced は有効かつHikCentralに同期済みの居住者を返す。
func (i *Issuer) activeSynced(ctx context.Context, localCode string) (*model.Resident, error) {
	r, err := i.repo.FindActiveByCode(ctx, localCode)
	if err != nil {
		return nil, fmt.Errorf("居住者の取得に失敗しました: %w", err)
	}
	if r == nil {
		return nil, model.NewResidentNotFoundError(localCode)
	}
	if !r.Synced() {
		return nil, model.NewResidentNotSyncedError(localCode)
	}
	return r, nil
}

func (i *Issuer) visitorQRText(reg hikcentral.VisitorRegistration) string {
	fallback := "VISITOR_" + reg.AppointRecordID
	if reg.QRCodeImage == "" || i.decoder == nil {
		return fallback
	}
	text, err := i.decoder.Decode(reg.QRCodeImage)
	if err != nil || text == "" {
		i.logger.Warn("failed to decode visitor qr image, using fallback",
			slog.String("appoint_record_id", reg.AppointRecordID),
			slog.Any("error", err),
		)
		return fallback
	}
	return text
}
