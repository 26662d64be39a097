package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ScheduledExtensionRepository implements port.ScheduledExtensionRepository
type ScheduledExtensionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScheduledExtensionRepository creates a new scheduled extension repository
func NewScheduledExtensionRepository(db *sql.DB, logger *zap.Logger) port.ScheduledExtensionRepository {
	return &ScheduledExtensionRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces the schedule
func (r *ScheduledExtensionRepository) Save(ctx context.Context, ext *entity.ScheduledExtension) error {
	query := `
		INSERT INTO scheduled_extensions (
			ewaybill_number, vehicle_no, from_place, from_pincode, remaining_distance,
			consignment_status, reason_code, remark, scheduled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ewaybill_number) DO UPDATE SET
			vehicle_no = excluded.vehicle_no,
			from_place = excluded.from_place,
			from_pincode = excluded.from_pincode,
			remaining_distance = excluded.remaining_distance,
			consignment_status = excluded.consignment_status,
			reason_code = excluded.reason_code,
			remark = excluded.remark,
			scheduled_at = excluded.scheduled_at
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		ext.EwaybillNumber,
		ext.VehicleNo,
		ext.FromPlace,
		ext.FromPincode,
		ext.RemainingDistance,
		ext.ConsignmentStatus,
		ext.ReasonCode,
		ext.Remark,
		ext.ScheduledAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save scheduled extension",
			zap.String("ewaybill_number", ext.EwaybillNumber),
			zap.Error(err))
		return fmt.Errorf("failed to save scheduled extension: %w", err)
	}
	return nil
}

// Get returns the pending schedule of an e-waybill
func (r *ScheduledExtensionRepository) Get(ctx context.Context, number string) (*entity.ScheduledExtension, error) {
	query := `
		SELECT ewaybill_number, vehicle_no, from_place, from_pincode, remaining_distance,
			consignment_status, reason_code, remark, scheduled_at
		FROM scheduled_extensions
		WHERE ewaybill_number = ?
	`

	var ext entity.ScheduledExtension
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, number).Scan(
		&ext.EwaybillNumber,
		&ext.VehicleNo,
		&ext.FromPlace,
		&ext.FromPincode,
		&ext.RemainingDistance,
		&ext.ConsignmentStatus,
		&ext.ReasonCode,
		&ext.Remark,
		&ext.ScheduledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled extension: %w", err)
	}
	return &ext, nil
}

// Delete removes the schedule
func (r *ScheduledExtensionRepository) Delete(ctx context.Context, number string) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM scheduled_extensions WHERE ewaybill_number = ?`, number); err != nil {
		return fmt.Errorf("failed to delete scheduled extension: %w", err)
	}
	return nil
}
