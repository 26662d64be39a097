package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// EwaybillLogRepository implements port.EwaybillLogRepository
type EwaybillLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEwaybillLogRepository creates a new e-waybill log repository
func NewEwaybillLogRepository(db *sql.DB, logger *zap.Logger) port.EwaybillLogRepository {
	return &EwaybillLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit row
func (r *EwaybillLogRepository) Create(ctx context.Context, log *entity.EwaybillLog) error {
	query := `
		INSERT INTO ewaybill_logs (
			ewaybill_number, document_type, document_name, action,
			previous_status, new_status, reason, remark, request_id, is_sandbox, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		log.EwaybillNumber,
		log.DocumentType,
		log.DocumentName,
		log.Action,
		log.PreviousStatus,
		log.NewStatus,
		log.Reason,
		log.Remark,
		log.RequestID,
		log.IsSandbox,
		log.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create e-waybill log",
			zap.String("ewaybill_number", log.EwaybillNumber),
			zap.String("action", log.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create e-waybill log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	log.ID = id
	return nil
}

// GetByEwaybillNumber returns the audit trail of one e-waybill in insertion order
func (r *EwaybillLogRepository) GetByEwaybillNumber(ctx context.Context, number string) ([]*entity.EwaybillLog, error) {
	query := `
		SELECT id, ewaybill_number, document_type, document_name, action,
			previous_status, new_status, reason, remark, request_id, is_sandbox, timestamp
		FROM ewaybill_logs
		WHERE ewaybill_number = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, number)
	if err != nil {
		r.logger.Error("Failed to query e-waybill logs", zap.String("ewaybill_number", number), zap.Error(err))
		return nil, fmt.Errorf("failed to query e-waybill logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.EwaybillLog
	for rows.Next() {
		var l entity.EwaybillLog
		if err := rows.Scan(
			&l.ID,
			&l.EwaybillNumber,
			&l.DocumentType,
			&l.DocumentName,
			&l.Action,
			&l.PreviousStatus,
			&l.NewStatus,
			&l.Reason,
			&l.Remark,
			&l.RequestID,
			&l.IsSandbox,
			&l.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan e-waybill log: %w", err)
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}
