package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const ewaybillColumns = `
	id, ewaybill_number, document_type, document_name, company_gstin,
	created_on, valid_upto, transporter_id, transporter_name, vehicle_no, distance,
	extension_scheduled, is_generated_in_sandbox_mode, status, cancelled_on,
	expiry_notified_at, updated_at
`

// EwaybillRepository implements port.EwaybillRepository
type EwaybillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEwaybillRepository creates a new e-waybill repository
func NewEwaybillRepository(db *sql.DB, logger *zap.Logger) port.EwaybillRepository {
	return &EwaybillRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new e-waybill record
func (r *EwaybillRepository) Create(ctx context.Context, rec *entity.EwaybillRecord) error {
	query := `
		INSERT INTO ewaybills (
			ewaybill_number, document_type, document_name, company_gstin,
			created_on, valid_upto, transporter_id, transporter_name, vehicle_no, distance,
			extension_scheduled, is_generated_in_sandbox_mode, status, cancelled_on,
			expiry_notified_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.Number,
		string(rec.DocumentType),
		rec.DocumentName,
		rec.CompanyGSTIN,
		rec.CreatedOn.UTC(),
		nullTimePtr(rec.ValidUpto),
		rec.TransporterID,
		rec.TransporterName,
		rec.VehicleNo,
		rec.Distance,
		rec.ExtensionScheduled,
		rec.IsGeneratedInSandboxMode,
		rec.Status,
		nullTimePtr(rec.CancelledOn),
		nullTimePtr(rec.ExpiryNotifiedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create e-waybill", zap.String("ewaybill_number", rec.Number), zap.Error(err))
		return fmt.Errorf("failed to create e-waybill: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// GetByNumber retrieves an e-waybill by its portal number
func (r *EwaybillRepository) GetByNumber(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+ewaybillColumns+` FROM ewaybills WHERE ewaybill_number = ?`, number)

	rec, err := scanEwaybill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get e-waybill", zap.String("ewaybill_number", number), zap.Error(err))
		return nil, fmt.Errorf("failed to get e-waybill: %w", err)
	}
	return rec, nil
}

// GetActiveByDocument retrieves the GENERATED e-waybill of a transaction
func (r *EwaybillRepository) GetActiveByDocument(ctx context.Context, docType entity.DocumentType, name string) (*entity.EwaybillRecord, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+ewaybillColumns+` FROM ewaybills
		WHERE document_type = ? AND document_name = ? AND status = ?`,
		string(docType), name, entity.EwaybillStatusGenerated)

	rec, err := scanEwaybill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get e-waybill by document",
			zap.String("document_type", string(docType)),
			zap.String("document_name", name),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get e-waybill: %w", err)
	}
	return rec, nil
}

// Update writes every mutable column of the record
func (r *EwaybillRepository) Update(ctx context.Context, rec *entity.EwaybillRecord) error {
	query := `
		UPDATE ewaybills SET
			valid_upto = ?, transporter_id = ?, transporter_name = ?, vehicle_no = ?,
			distance = ?, extension_scheduled = ?, status = ?, cancelled_on = ?,
			expiry_notified_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE ewaybill_number = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		nullTimePtr(rec.ValidUpto),
		rec.TransporterID,
		rec.TransporterName,
		rec.VehicleNo,
		rec.Distance,
		rec.ExtensionScheduled,
		rec.Status,
		nullTimePtr(rec.CancelledOn),
		nullTimePtr(rec.ExpiryNotifiedAt),
		rec.Number,
	)
	if err != nil {
		r.logger.Error("Failed to update e-waybill", zap.String("ewaybill_number", rec.Number), zap.Error(err))
		return fmt.Errorf("failed to update e-waybill: %w", err)
	}
	return requireOneRow(result, "e-waybill "+rec.Number)
}

// ListByStatus returns up to limit records, earliest valid_upto first
func (r *EwaybillRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.EwaybillRecord, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ewaybillColumns+` FROM ewaybills
		WHERE status = ?
		ORDER BY valid_upto IS NULL, valid_upto ASC, id ASC
		LIMIT ?`, status, limit)
	if err != nil {
		r.logger.Error("Failed to list e-waybills", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list e-waybills: %w", err)
	}
	defer rows.Close()

	return collectEwaybills(rows)
}

// ListCreatedBetween returns records generated in [from, to), oldest first
func (r *EwaybillRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*entity.EwaybillRecord, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ewaybillColumns+` FROM ewaybills
		WHERE created_on >= ? AND created_on < ?
		ORDER BY created_on ASC, id ASC`, from.UTC(), to.UTC())
	if err != nil {
		r.logger.Error("Failed to list e-waybills by date", zap.Time("from", from), zap.Time("to", to), zap.Error(err))
		return nil, fmt.Errorf("failed to list e-waybills: %w", err)
	}
	defer rows.Close()

	return collectEwaybills(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEwaybill(row rowScanner) (*entity.EwaybillRecord, error) {
	var rec entity.EwaybillRecord
	var docType string
	var validUpto, cancelledOn, notifiedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.Number,
		&docType,
		&rec.DocumentName,
		&rec.CompanyGSTIN,
		&rec.CreatedOn,
		&validUpto,
		&rec.TransporterID,
		&rec.TransporterName,
		&rec.VehicleNo,
		&rec.Distance,
		&rec.ExtensionScheduled,
		&rec.IsGeneratedInSandboxMode,
		&rec.Status,
		&cancelledOn,
		&notifiedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.DocumentType = entity.DocumentType(docType)
	rec.ValidUpto = timePtr(validUpto)
	rec.CancelledOn = timePtr(cancelledOn)
	rec.ExpiryNotifiedAt = timePtr(notifiedAt)
	return &rec, nil
}

func collectEwaybills(rows *sql.Rows) ([]*entity.EwaybillRecord, error) {
	var records []*entity.EwaybillRecord
	for rows.Next() {
		rec, err := scanEwaybill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan e-waybill: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
