// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Log       LogConfig       `mapstructure:"log"`
	Client    ClientConfig    `mapstructure:"client"`
	Server    ServerConfig    `mapstructure:"server"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Presenter PresenterConfig `mapstructure:"presenter"`
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file", "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// ClientConfig holds the settings of the request dispatcher that talks to
// the mindmap generation service.
type ClientConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	LLMType           string        `mapstructure:"llm_type"` // "ollama" or "gemini"
	APIKey            string        `mapstructure:"api_key"`  // Required for gemini
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`        // Abort when no chunk arrives for this long
	MinLaunchInterval time.Duration `mapstructure:"min_launch_interval"` // Throttle between attempts; 0 disables
	MaxLineBytes      int           `mapstructure:"max_line_bytes"`
	MaxFileBytes      int64         `mapstructure:"max_file_bytes"`
}

// ServerConfig holds configuration of the local mission-control stub server.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"` // Empty = allow all (development)
	ScenarioFile   string        `mapstructure:"scenario_file"`   // Empty = built-in scenario
	StepDelay      time.Duration `mapstructure:"step_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	// SucceedOnAttempt is the generation attempt whose draft passes
	// validation in the built-in scenario; 0 makes every attempt fail.
	SucceedOnAttempt int `mapstructure:"succeed_on_attempt"`
}

// JournalConfig holds the attempt history database configuration.
type JournalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// PresenterConfig controls how mission state is rendered.
type PresenterConfig struct {
	Plain      bool   `mapstructure:"plain"`       // Force line-per-event output
	OutputPath string `mapstructure:"output_path"` // Where the success payload is written; "-" = stdout
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.mindlaunch")
	}

	v.SetEnvPrefix("MINDLAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"client.base_url", "client.llm_type", "client.api_key", "journal.driver", "journal.database"} {
		_ = v.BindEnv(key)
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or the environment.
func Default() *AppConfig {
	cfg := defaultConfig()
	cfg.expandPaths()
	return &cfg
}

// defaultConfig returns an AppConfig with default values.
// This is more type-safe than using viper.SetDefault().
func defaultConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "~/.mindlaunch/logs/mindlaunch.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  20,
						MaxBackups: 5,
						MaxAgeDays: 14,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: false, // Disabled by default for TUI
				},
			},
			Levels: map[string]string{
				"stream":   "INFO",
				"mission":  "INFO",
				"dispatch": "INFO",
				"tui":      "WARN",
				"journal":  "INFO",
				"api":      "INFO",
			},
			Context: LogContextConfig{
				IncludeCaller:     true,
				IncludeTimestamp:  true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Client: ClientConfig{
			BaseURL:           "http://127.0.0.1:8000",
			LLMType:           "ollama",
			ConnectTimeout:    30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			MinLaunchInterval: 2 * time.Second,
			MaxLineBytes:      8 << 20,
			MaxFileBytes:      10 << 20,
		},
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8000,
			StepDelay:        400 * time.Millisecond,
			MaxRetries:       3,
			MaxUploadBytes:   10 << 20,
			SucceedOnAttempt: 1,
		},
		Journal: JournalConfig{
			Enabled:  true,
			Driver:   "sqlite",
			Database: "~/.mindlaunch/journal.db",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
		},
		Presenter: PresenterConfig{
			OutputPath: "-",
		},
	}
}

// expandPaths expands ~ and environment variables in path configuration values
func (c *AppConfig) expandPaths() {
	for i := range c.Log.Output {
		if c.Log.Output[i].Path != "" {
			c.Log.Output[i].Path = expandPath(c.Log.Output[i].Path)
		}
	}

	if c.Journal.Driver == "sqlite" && c.Journal.Database != ":memory:" {
		c.Journal.Database = expandPath(c.Journal.Database)
	}

	if c.Server.ScenarioFile != "" {
		c.Server.ScenarioFile = expandPath(c.Server.ScenarioFile)
	}

	if c.Presenter.OutputPath != "" && c.Presenter.OutputPath != "-" {
		c.Presenter.OutputPath = expandPath(c.Presenter.OutputPath)
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Client.BaseURL == "" {
		return errors.New("client.base_url is required")
	}
	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("client.base_url must be an absolute URL, got: %s", c.Client.BaseURL)
	}

	switch c.Client.LLMType {
	case "ollama":
	case "gemini":
		if c.Client.APIKey == "" {
			return errors.New("client.api_key is required when client.llm_type is gemini")
		}
	default:
		return fmt.Errorf("client.llm_type must be 'ollama' or 'gemini', got: %s", c.Client.LLMType)
	}

	if c.Client.IdleTimeout < 0 || c.Client.MinLaunchInterval < 0 {
		return errors.New("client timeouts must not be negative")
	}
	if c.Client.MaxLineBytes <= 0 {
		return fmt.Errorf("client.max_line_bytes must be positive, got: %d", c.Client.MaxLineBytes)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxRetries <= 0 {
		return fmt.Errorf("server.max_retries must be positive, got: %d", c.Server.MaxRetries)
	}
	if c.Server.SucceedOnAttempt < 0 {
		return fmt.Errorf("server.succeed_on_attempt must not be negative, got: %d", c.Server.SucceedOnAttempt)
	}

	if c.Journal.Enabled && c.Journal.Driver == "" {
		return errors.New("journal driver is required")
	}

	return nil
}

// GetDSN returns the database connection string.
func (jc *JournalConfig) GetDSN() string {
	switch jc.Driver {
	case "sqlite":
		dsn := jc.Database
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return dsn
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			jc.Host, jc.Port, jc.Username, jc.Password, jc.Database, jc.SSLMode)
	default:
		return jc.Database
	}
}
