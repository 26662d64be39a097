package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	GSP        GSPConfig        `mapstructure:"gsp"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ComplianceConfig seeds the compliance settings until they are saved through the API
type ComplianceConfig struct {
	EnableEwaybill       bool   `mapstructure:"enable_e_waybill"`
	EnableEwaybillFromPI bool   `mapstructure:"enable_e_waybill_from_pi"`
	EnableEwaybillFromDN bool   `mapstructure:"enable_e_waybill_from_dn"`
	EnableEwaybillFromPR bool   `mapstructure:"enable_e_waybill_from_pr"`
	EnableEwaybillFromSC bool   `mapstructure:"enable_e_waybill_from_sc"`
	EnableEInvoice       bool   `mapstructure:"enable_e_invoice"`
	EnableAPI            bool   `mapstructure:"enable_api"`
	SandboxMode          bool   `mapstructure:"sandbox_mode"`
	EwaybillThreshold    string `mapstructure:"e_waybill_threshold"`
	AutoGenerateEwaybill bool   `mapstructure:"auto_generate_e_waybill"`
	AutoGenerateEInvoice bool   `mapstructure:"auto_generate_e_invoice"`
}

// GSPConfig holds the e-waybill API provider connection
type GSPConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a live GSP endpoint is set up
func (g GSPConfig) Configured() bool {
	return g.BaseURL != "" && g.APIKey != ""
}

// LarkConfig holds Lark notification settings. Leaving the app id empty disables Lark.
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
	ReceiveID     string `mapstructure:"receive_id"`
}

// MonitorConfig holds validity monitor settings
type MonitorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// ReportConfig holds register export settings
type ReportConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	CompanyName string `mapstructure:"company_name"`
}

// Load loads configuration from file, a .env file next to the working directory, and environment variables
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/gst-compliance.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Compliance defaults
	v.SetDefault("compliance.enable_e_waybill", true)
	v.SetDefault("compliance.e_waybill_threshold", entity.DefaultEwaybillThreshold.String())
	v.SetDefault("compliance.sandbox_mode", true)

	// GSP defaults
	v.SetDefault("gsp.timeout", 30*time.Second)

	// Lark defaults
	v.SetDefault("lark.receive_id_type", "chat_id")

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.poll_interval", 5*time.Minute)
	v.SetDefault("monitor.batch_size", 200)
	v.SetDefault("monitor.process_timeout", 60*time.Second)

	// Report defaults
	v.SetDefault("report.output_dir", "reports")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("gsp.base_url", "GSP_BASE_URL")
	_ = v.BindEnv("gsp.api_key", "GSP_API_KEY")
	_ = v.BindEnv("gsp.username", "GSP_USERNAME")
	_ = v.BindEnv("gsp.password", "GSP_PASSWORD")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.receive_id", "LARK_RECEIVE_ID")
	_ = v.BindEnv("report.company_name", "COMPANY_NAME")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	threshold, err := decimal.NewFromString(c.Compliance.EwaybillThreshold)
	if err != nil {
		return fmt.Errorf("compliance.e_waybill_threshold: %w", err)
	}
	if threshold.IsNegative() {
		return fmt.Errorf("compliance.e_waybill_threshold must not be negative")
	}

	// Live mode needs somewhere to send requests
	if c.Compliance.EnableAPI && !c.Compliance.SandboxMode && !c.GSP.Configured() {
		return fmt.Errorf("gsp.base_url and gsp.api_key are required when enable_api is set outside sandbox mode")
	}

	if c.Lark.AppID != "" && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required when lark.app_id is set")
	}

	if c.Report.CompanyName == "" {
		return fmt.Errorf("report.company_name is required")
	}

	return nil
}

// ComplianceDefaults converts the compliance section into settings defaults
func (c *Config) ComplianceDefaults() entity.ComplianceSettings {
	threshold, err := decimal.NewFromString(c.Compliance.EwaybillThreshold)
	if err != nil {
		threshold = entity.DefaultEwaybillThreshold
	}
	return entity.ComplianceSettings{
		EnableEwaybill:       c.Compliance.EnableEwaybill,
		EnableEwaybillFromPI: c.Compliance.EnableEwaybillFromPI,
		EnableEwaybillFromDN: c.Compliance.EnableEwaybillFromDN,
		EnableEwaybillFromPR: c.Compliance.EnableEwaybillFromPR,
		EnableEwaybillFromSC: c.Compliance.EnableEwaybillFromSC,
		EnableEInvoice:       c.Compliance.EnableEInvoice,
		APIEnabled:           c.Compliance.EnableAPI,
		SandboxMode:          c.Compliance.SandboxMode,
		EwaybillThreshold:    threshold,
		AutoGenerateEwaybill: c.Compliance.AutoGenerateEwaybill,
		AutoGenerateEInvoice: c.Compliance.AutoGenerateEInvoice,
	}
}
