package port

import (
	"context"
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
)

// TransactionRepository stores transaction snapshots synced from the host system
type TransactionRepository interface {
	Upsert(ctx context.Context, snap *entity.TransactionSnapshot) error

	// Get returns nil, nil when the transaction is unknown
	Get(ctx context.Context, docType entity.DocumentType, name string) (*entity.TransactionSnapshot, error)

	SetEwaybillNumber(ctx context.Context, docType entity.DocumentType, name, number string) error
}

// EwaybillRepository defines persistence operations for EwaybillRecord
type EwaybillRepository interface {
	Create(ctx context.Context, rec *entity.EwaybillRecord) error

	// GetByNumber returns nil, nil when no record exists
	GetByNumber(ctx context.Context, number string) (*entity.EwaybillRecord, error)

	// GetActiveByDocument returns the GENERATED record of a transaction, or nil
	GetActiveByDocument(ctx context.Context, docType entity.DocumentType, name string) (*entity.EwaybillRecord, error)

	Update(ctx context.Context, rec *entity.EwaybillRecord) error

	// ListByStatus returns up to limit records ordered by valid_upto
	ListByStatus(ctx context.Context, status string, limit int) ([]*entity.EwaybillRecord, error)

	// ListCreatedBetween returns records generated in [from, to)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*entity.EwaybillRecord, error)
}

// EwaybillLogRepository stores the audit trail of e-Waybill actions
type EwaybillLogRepository interface {
	Create(ctx context.Context, log *entity.EwaybillLog) error
	GetByEwaybillNumber(ctx context.Context, number string) ([]*entity.EwaybillLog, error)
}

// ScheduledExtensionRepository stores pending extension requests, one per e-Waybill
type ScheduledExtensionRepository interface {
	// Save inserts or replaces the schedule for the e-Waybill
	Save(ctx context.Context, ext *entity.ScheduledExtension) error

	// Get returns nil, nil when nothing is scheduled
	Get(ctx context.Context, number string) (*entity.ScheduledExtension, error)

	// Delete is a no-op when nothing is scheduled
	Delete(ctx context.Context, number string) error
}

// SettingsRepository persists ComplianceSettings
type SettingsRepository interface {
	// Get returns nil, nil when settings were never saved
	Get(ctx context.Context) (*entity.ComplianceSettings, error)
	Save(ctx context.Context, settings *entity.ComplianceSettings) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
