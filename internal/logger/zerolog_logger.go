// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logger hands out per-package zerolog loggers configured from the
// log section of the config. The CLI logs to files only by default so the
// mission control view keeps the terminal to itself.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noldarim/mindlaunch/internal/config"
)

// fallbackLogPath receives logs when no output is enabled. It lives in the
// temp dir so a CLI run never litters the directory it was started from.
var fallbackLogPath = filepath.Join(os.TempDir(), "mindlaunch", "mindlaunch-fallback.log")

const (
	consoleTimeFormat = "15:04:05.000"
	fileTimeFormat    = "2006-01-02 15:04:05.000"
)

// Manager owns the log outputs and one logger per package.
type Manager struct {
	config         *config.LogConfig
	globalLogger   zerolog.Logger
	packageLoggers map[string]zerolog.Logger
	mu             sync.RWMutex
	closers        []io.Closer
}

// NewManager opens every enabled output of cfg.
func NewManager(cfg *config.LogConfig) (*Manager, error) {
	m := &Manager{
		config:         cfg,
		packageLoggers: make(map[string]zerolog.Logger),
	}

	globalLevel := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(globalLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	for _, out := range cfg.Output {
		if !out.Enabled {
			continue
		}
		w, err := m.open(out, cfg.Format)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to create log writers: %w", err)
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		w, err := m.open(config.LogOutputConfig{Type: "file", Enabled: true, Path: fallbackLogPath}, cfg.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to open fallback log: %w", err)
		}
		writers = append(writers, w)
	}

	var sink io.Writer = writers[0]
	if len(writers) > 1 {
		sink = zerolog.MultiLevelWriter(writers...)
	}
	m.globalLogger = m.createLogger(sink, globalLevel)
	return m, nil
}

// open creates the writer for one output and keeps its closer.
func (m *Manager) open(out config.LogOutputConfig, format string) (io.Writer, error) {
	switch out.Type {
	case "console":
		if format == "console" {
			return consoleWriter(os.Stderr, consoleTimeFormat, false), nil
		}
		return os.Stderr, nil

	case "file":
		if err := os.MkdirAll(filepath.Dir(out.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		var w io.WriteCloser
		if out.Rotate.MaxSizeMB > 0 {
			w = &lumberjack.Logger{
				Filename:   out.Path,
				MaxSize:    out.Rotate.MaxSizeMB,
				MaxBackups: out.Rotate.MaxBackups,
				MaxAge:     out.Rotate.MaxAgeDays,
				Compress:   out.Rotate.Compress,
			}
		} else {
			f, err := os.OpenFile(out.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file %s: %w", out.Path, err)
			}
			w = f
		}
		m.closers = append(m.closers, w)

		if format == "console" {
			return consoleWriter(w, fileTimeFormat, true), nil
		}
		return w, nil

	default:
		return nil, fmt.Errorf("unsupported output type: %s", out.Type)
	}
}

func consoleWriter(w io.Writer, timeFormat string, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		NoColor:    noColor,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
	}
}

func (m *Manager) createLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	l := zerolog.New(w).Level(level)

	if m.config.Context.IncludeTimestamp {
		l = l.With().Timestamp().Logger()
	}
	if m.config.Context.IncludeCaller {
		l = l.With().Caller().Logger()
	}
	if m.config.Context.IncludeStackTrace != "" {
		l = l.With().Stack().Logger()
	}

	// A burst of stream diagnostics is sampled rather than flooding the file.
	if m.config.Sampling.Enabled {
		l = l.Sample(&zerolog.BurstSampler{
			Burst:       m.config.Sampling.Initial,
			Period:      m.config.Sampling.Tick,
			NextSampler: &zerolog.BasicSampler{N: m.config.Sampling.Thereafter},
		})
	}
	return l
}

// GetLogger returns the logger of pkg, tagged with a pkg field and
// leveled by log.levels[pkg] when set.
func (m *Manager) GetLogger(pkg string) zerolog.Logger {
	m.mu.RLock()
	l, ok := m.packageLoggers[pkg]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.packageLoggers[pkg]; ok {
		return l
	}

	level := parseLevel(m.config.Level)
	if pkgLevel, ok := m.config.Levels[pkg]; ok {
		level = parseLevel(pkgLevel)
	}
	l = m.globalLogger.With().Str("pkg", pkg).Logger().Level(level)
	m.packageLoggers[pkg] = l
	return l
}

// SetPackageLevel changes the level of pkg at runtime.
func (m *Manager) SetPackageLevel(pkg string, level string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Levels == nil {
		m.config.Levels = make(map[string]string)
	}
	m.config.Levels[pkg] = level

	if l, ok := m.packageLoggers[pkg]; ok {
		m.packageLoggers[pkg] = l.Level(parseLevel(level))
	}
}

// Close closes every file output. Rotating outputs reopen on the next write.
func (m *Manager) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "PANIC":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	globalManager *Manager
	once          sync.Once
)

// Initialize sets up the process-wide manager. Only the first call counts.
func Initialize(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		globalManager, err = NewManager(cfg)
	})
	return err
}

// GetLogger returns the logger of pkg, or a discarding one before
// Initialize so nothing leaks onto the terminal.
func GetLogger(pkg string) zerolog.Logger {
	if globalManager == nil {
		return zerolog.New(io.Discard)
	}
	return globalManager.GetLogger(pkg)
}

func CloseGlobal() error {
	if globalManager == nil {
		return nil
	}
	return globalManager.Close()
}
