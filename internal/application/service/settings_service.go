package service

import (
	"context"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
)

// SettingsService reads and updates the compliance settings in force
type SettingsService interface {
	Get(ctx context.Context) (*entity.ComplianceSettings, error)
	Update(ctx context.Context, settings *entity.ComplianceSettings) error
}

type settingsServiceImpl struct {
	repo     port.SettingsRepository
	defaults entity.ComplianceSettings
	logger   Logger
}

// NewSettingsService creates a SettingsService that falls back to defaults until settings are saved
func NewSettingsService(repo port.SettingsRepository, defaults entity.ComplianceSettings, logger Logger) SettingsService {
	if defaults.EwaybillThreshold.IsZero() {
		defaults.EwaybillThreshold = entity.DefaultEwaybillThreshold
	}
	return &settingsServiceImpl{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns the stored settings, or a copy of the defaults
func (s *settingsServiceImpl) Get(ctx context.Context) (*entity.ComplianceSettings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Error("Failed to load settings", "error", err)
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if stored == nil {
		d := s.defaults
		return &d, nil
	}
	return stored, nil
}

// Update validates and stores the settings
func (s *settingsServiceImpl) Update(ctx context.Context, settings *entity.ComplianceSettings) error {
	if settings == nil {
		return invalid("settings are required")
	}
	if settings.EwaybillThreshold.IsNegative() {
		return invalid("e-waybill threshold cannot be negative")
	}
	if settings.AutoGenerateEwaybill && !settings.EnableEwaybill {
		return invalid("auto-generation needs e-waybill to be enabled")
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		s.logger.Error("Failed to save settings", "error", err)
		return fmt.Errorf("save settings: %w", err)
	}

	s.logger.Info("Compliance settings updated",
		"enable_e_waybill", settings.EnableEwaybill,
		"sandbox_mode", settings.SandboxMode,
		"threshold", settings.EwaybillThreshold.String())
	return nil
}
