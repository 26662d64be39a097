package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// SettingsRepository stores ComplianceSettings as key/value rows, one per JSON field
type SettingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB, logger *zap.Logger) port.SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get assembles the settings from their stored keys
func (r *SettingsRepository) Get(ctx context.Context) (*entity.ComplianceSettings, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `SELECT key, value FROM compliance_settings`)
	if err != nil {
		r.logger.Error("Failed to query settings", zap.Error(err))
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		fields[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	settings := entity.ComplianceSettings{EwaybillThreshold: entity.DefaultEwaybillThreshold}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &settings, nil
}

// Save overwrites every key of the settings
func (r *SettingsRepository) Save(ctx context.Context, settings *entity.ComplianceSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	exec := sqlite.Conn(ctx, r.db)
	for key, value := range fields {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO compliance_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, string(value))
		if err != nil {
			r.logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	return nil
}
