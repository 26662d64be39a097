package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/gst-compliance/internal/config"
	"github.com/garyjia/gst-compliance/internal/container"
	httpserver "github.com/garyjia/gst-compliance/internal/interfaces/http"
	"github.com/garyjia/gst-compliance/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "gst-compliance",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting GST compliance service",
		zap.String("version", httpserver.Version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("sandbox_mode", cfg.Compliance.SandboxMode))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Service exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return errors.Join(err, c.Close())
	}

	svcs := c.Services()
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.Services{
		Ewaybill: svcs.Ewaybill,
		Settings: svcs.Settings,
		Reports:  svcs.Reports,
	}, container.NewServiceLogger(logger.Named("http")))

	// blocks until a signal arrives or the listener fails
	serveErr := server.Start(ctx)

	logger.Info("Shutting down")
	return errors.Join(serveErr, c.Close())
}
