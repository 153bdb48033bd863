package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	History HistoryConfig `mapstructure:"history"`
	Params  ParamsConfig  `mapstructure:"params"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives the operation log. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// SSHConfig holds remote execution configuration.
type SSHConfig struct {
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// DeployConfig holds deployment pipeline configuration.
type DeployConfig struct {
	// RemoteBase is the directory on the target host deployments are
	// mirrored into.
	RemoteBase string `mapstructure:"remote_base"`
	// SettleDelay is the wait between rollout and the running check.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// WorkDir holds local repository working copies.
	WorkDir string `mapstructure:"work_dir"`
	// DataDir receives the deployment record and the run summary.
	DataDir string `mapstructure:"data_dir"`
}

// HistoryConfig holds run-history store configuration.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ParamsConfig holds defaults for the per-run deployment parameters.
// Flags override these; the token can also come from SHIPWARD_PARAMS_TOKEN.
type ParamsConfig struct {
	RepoURL    string `mapstructure:"repo_url"`
	Token      string `mapstructure:"token"`
	Branch     string `mapstructure:"branch"`
	SSHUser    string `mapstructure:"ssh_user"`
	Host       string `mapstructure:"host"`
	SSHKeyPath string `mapstructure:"ssh_key"`
	AppPort    int    `mapstructure:"app_port"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "./data/shipward.log")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.command_timeout", "60s")
	v.SetDefault("deploy.remote_base", "/opt/deployments")
	v.SetDefault("deploy.settle_delay", "10s")
	v.SetDefault("deploy.work_dir", "./data/src")
	v.SetDefault("deploy.data_dir", "./data")
	v.SetDefault("history.dsn", "./data/shipward.db")
	v.SetDefault("params.repo_url", "")
	v.SetDefault("params.token", "")
	v.SetDefault("params.branch", "main")
	v.SetDefault("params.ssh_user", "")
	v.SetDefault("params.host", "")
	v.SetDefault("params.ssh_key", "")
	v.SetDefault("params.app_port", 0)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHIPWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Returns the logger and the log file path when logging to a file.
func SetupLogger(cfg *Config) (*slog.Logger, string, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	out := os.Stderr
	logPath := ""
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, "", fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, "", fmt.Errorf("open log file: %w", err)
		}
		out = f
		logPath = cfg.Log.File
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), logPath, nil
}
