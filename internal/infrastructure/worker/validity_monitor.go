package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/ewaybill"
	"go.uber.org/zap"
)

// ValidityMonitorConfig holds configuration for the validity monitor
type ValidityMonitorConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	ProcessTimeout time.Duration
}

// DefaultValidityMonitorConfig returns default configuration
func DefaultValidityMonitorConfig() ValidityMonitorConfig {
	return ValidityMonitorConfig{
		PollInterval:   5 * time.Minute,
		BatchSize:      200,
		ProcessTimeout: 60 * time.Second,
	}
}

// EwaybillLifecycle is the part of the e-waybill service the monitor drives
type EwaybillLifecycle interface {
	RunScheduledExtension(ctx context.Context, number string) (*entity.EwaybillRecord, error)
	NotifyExtensionWindow(ctx context.Context, number string) error
	MarkExpired(ctx context.Context, number string) (*entity.EwaybillRecord, error)
}

// MonitorStats counts what one sweep did
type MonitorStats struct {
	Checked  int `json:"checked"`
	Extended int `json:"extended"`
	Notified int `json:"notified"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

func (s *MonitorStats) add(o MonitorStats) {
	s.Checked += o.Checked
	s.Extended += o.Extended
	s.Notified += o.Notified
	s.Expired += o.Expired
	s.Failed += o.Failed
}

// ValidityMonitor sweeps active e-waybills. It submits scheduled extensions once
// the window opens, announces the window to the team, and moves e-waybills whose
// window has closed to EXPIRED.
type ValidityMonitor struct {
	config ValidityMonitorConfig

	ewaybillRepo port.EwaybillRepository
	lifecycle    EwaybillLifecycle
	clock        port.Clock
	logger       *zap.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	lastRun   time.Time
	totals    MonitorStats
	lastError error
}

// NewValidityMonitor creates a new validity monitor
func NewValidityMonitor(
	config ValidityMonitorConfig,
	ewaybillRepo port.EwaybillRepository,
	lifecycle EwaybillLifecycle,
	clock port.Clock,
	logger *zap.Logger,
) *ValidityMonitor {
	defaults := DefaultValidityMonitorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}
	return &ValidityMonitor{
		config:       config,
		ewaybillRepo: ewaybillRepo,
		lifecycle:    lifecycle,
		clock:        clock,
		logger:       logger,
	}
}

// Start begins the polling loop
func (m *ValidityMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("validity monitor already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.isRunning = true
	m.mu.Unlock()

	m.logger.Info("ValidityMonitor started",
		zap.Duration("poll_interval", m.config.PollInterval),
		zap.Int("batch_size", m.config.BatchSize))

	go m.pollLoop(m.ctx, m.done)
	return nil
}

// Stop terminates the loop and waits for the sweep in progress
func (m *ValidityMonitor) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	stats := m.Totals()
	m.logger.Info("ValidityMonitor stopped",
		zap.Int("extended", stats.Extended),
		zap.Int("notified", stats.Notified),
		zap.Int("expired", stats.Expired),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (m *ValidityMonitor) Name() string {
	return "ValidityMonitor"
}

// Totals returns the counts accumulated since start
func (m *ValidityMonitor) Totals() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals
}

// LastRun returns when the last sweep finished and the error it ended with
func (m *ValidityMonitor) LastRun() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun, m.lastError
}

func (m *ValidityMonitor) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Validity monitor context cancelled")
			return

		case <-ticker.C:
			stats, err := m.RunOnce(ctx)
			if err != nil {
				m.logger.Error("Validity sweep failed", zap.Error(err))
			}

			m.mu.Lock()
			m.lastRun = m.clock.Now()
			m.lastError = err
			m.totals.add(stats)
			m.mu.Unlock()
		}
	}
}

// RunOnce performs one sweep over active e-waybills. Failures on single records
// are counted and logged; only a failed listing is returned as an error.
func (m *ValidityMonitor) RunOnce(ctx context.Context) (MonitorStats, error) {
	var stats MonitorStats

	records, err := m.ewaybillRepo.ListByStatus(ctx, entity.EwaybillStatusGenerated, m.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list active e-waybills: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return stats, nil
		}
		stats.Checked++
		m.check(ctx, rec, &stats)
	}

	if stats.Extended+stats.Notified+stats.Expired+stats.Failed > 0 {
		m.logger.Info("Validity sweep finished",
			zap.Int("checked", stats.Checked),
			zap.Int("extended", stats.Extended),
			zap.Int("notified", stats.Notified),
			zap.Int("expired", stats.Expired),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

func (m *ValidityMonitor) check(ctx context.Context, rec *entity.EwaybillRecord, stats *MonitorStats) {
	if rec.ValidUpto == nil {
		return
	}
	now := m.clock.Now()

	recCtx, cancel := context.WithTimeout(ctx, m.config.ProcessTimeout)
	defer cancel()

	if rec.ExtensionScheduled && ewaybill.CanExtendNow(rec, now) {
		_, err := m.lifecycle.RunScheduledExtension(recCtx, rec.Number)
		if err == nil {
			stats.Extended++
			return
		}
		m.fail(stats, rec, "scheduled extension", err)
	}

	// a failed scheduled extension still gets the window notice
	switch {
	case ewaybill.CanExtendNow(rec, now) && rec.ExpiryNotifiedAt == nil:
		if err := m.lifecycle.NotifyExtensionWindow(recCtx, rec.Number); err != nil {
			m.fail(stats, rec, "extension window notice", err)
			return
		}
		stats.Notified++

	case !ewaybill.IsValid(rec, now) && ewaybill.HasExtensionWindowExpired(rec, now):
		if _, err := m.lifecycle.MarkExpired(recCtx, rec.Number); err != nil {
			m.fail(stats, rec, "expiry", err)
			return
		}
		stats.Expired++
	}
}

func (m *ValidityMonitor) fail(stats *MonitorStats, rec *entity.EwaybillRecord, step string, err error) {
	stats.Failed++
	m.logger.Error("Validity monitor step failed",
		zap.String("step", step),
		zap.String("ewaybill_number", rec.Number),
		zap.Error(err))
}
