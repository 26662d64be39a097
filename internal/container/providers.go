// Package container wires the GST compliance service together and owns its lifecycle.
package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/gst-compliance/internal/application/dispatcher"
	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/application/service"
	"github.com/garyjia/gst-compliance/internal/config"
	"github.com/garyjia/gst-compliance/internal/infrastructure/external/gsp"
	infraLark "github.com/garyjia/gst-compliance/internal/infrastructure/external/lark"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/repository"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/gst-compliance/internal/infrastructure/report"
	"github.com/garyjia/gst-compliance/internal/infrastructure/storage"
	"github.com/garyjia/gst-compliance/internal/infrastructure/worker"
	"github.com/garyjia/gst-compliance/migrations"
	"github.com/garyjia/gst-compliance/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// APIBundle holds the e-waybill API backends. Live is nil when no GSP is configured.
type APIBundle struct {
	Live    port.EwaybillAPI
	Sandbox port.EwaybillAPI
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).Run(migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Transactions: repository.NewTransactionRepository(sqlDB, logger),
		Ewaybills:    repository.NewEwaybillRepository(sqlDB, logger),
		Logs:         repository.NewEwaybillLogRepository(sqlDB, logger),
		Schedules:    repository.NewScheduledExtensionRepository(sqlDB, logger),
		Settings:     repository.NewSettingsRepository(sqlDB, logger),
	}, nil
}

// ProvideEwaybillAPIs creates the sandbox backend and, when configured, the live GSP client.
func ProvideEwaybillAPIs(cfg *config.GSPConfig, clock port.Clock, logger *zap.Logger) *APIBundle {
	bundle := &APIBundle{Sandbox: gsp.NewSandboxClient(clock, logger)}

	if cfg.Configured() {
		bundle.Live = gsp.NewClient(gsp.Config{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		}, logger)
		logger.Info("GSP client configured", zap.String("base_url", cfg.BaseURL))
	} else {
		logger.Info("GSP not configured, live e-waybill calls disabled")
	}

	return bundle
}

// ProvideNotifier returns a Lark notifier, or a log-only notifier when Lark is not configured.
func ProvideNotifier(cfg *config.LarkConfig, logger *zap.Logger) port.Notifier {
	larkCfg := infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
		ReceiveID:     cfg.ReceiveID,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark not configured, notices go to the log")
		return infraLark.NewLogNotifier(logger)
	}

	client := infraLark.NewSDKClient(larkCfg, logger)
	return infraLark.NewNotifier(client, larkCfg, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) *dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}))
}

// ServiceDeps holds dependencies needed to create services.
type ServiceDeps struct {
	Config    *config.Config
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	APIs      *APIBundle
	Events    port.EventPublisher
	Notifier  port.Notifier
	Clock     port.Clock
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.APIs == nil || deps.APIs.Sandbox == nil {
		return nil, fmt.Errorf("sandbox e-waybill API is required")
	}

	svcLogger := &zapLoggerAdapter{logger: deps.Logger}

	settings := service.NewSettingsService(deps.Repos.Settings, deps.Config.ComplianceDefaults(), svcLogger)

	ewaybill := service.NewEwaybillService(
		service.EwaybillRepositories{
			Transactions: deps.Repos.Transactions,
			Ewaybills:    deps.Repos.Ewaybills,
			Logs:         deps.Repos.Logs,
			Schedules:    deps.Repos.Schedules,
		},
		deps.TxManager,
		settings,
		deps.APIs.Live,
		deps.APIs.Sandbox,
		deps.Events,
		deps.Clock,
		svcLogger,
	)

	reports := service.NewReportService(
		deps.Repos.Ewaybills,
		deps.Repos.Transactions,
		report.NewRegisterWriter(deps.Config.Report.CompanyName, deps.Logger),
		storage.NewLocalFileStorage(deps.Config.Report.OutputDir, deps.Logger),
		svcLogger,
	)

	return &ServiceBundle{
		Ewaybill:     ewaybill,
		Settings:     settings,
		Reports:      reports,
		Notification: service.NewNotificationService(deps.Notifier, svcLogger),
	}, nil
}

// WorkerDeps holds dependencies needed to create workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Lifecycle  worker.EwaybillLifecycle
	MonitorCfg *config.MonitorConfig
	Clock      port.Clock
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the enabled workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.MonitorCfg == nil {
		return nil, fmt.Errorf("monitor config is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.MonitorCfg.Enabled {
		monitor := worker.NewValidityMonitor(worker.ValidityMonitorConfig{
			PollInterval:   deps.MonitorCfg.PollInterval,
			BatchSize:      deps.MonitorCfg.BatchSize,
			ProcessTimeout: deps.MonitorCfg.ProcessTimeout,
		}, deps.Repos.Ewaybills, deps.Lifecycle, deps.Clock, deps.Logger.Named("monitor"))
		manager.Register(monitor)
	} else {
		deps.Logger.Info("Validity monitor disabled")
	}

	return manager, nil
}
