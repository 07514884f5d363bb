// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the root slog.Logger for Driftchat binaries.
//
// # Description
//
// Both entry points (the gateway server and the driftchat CLI) construct
// one Logger at startup and hand its Slog() to every service; nothing
// below the binaries imports this package. Output goes to stderr, in text
// or JSON, and optionally to a dated file under LOG_DIR as well.
//
// # Usage
//
//	logger := logging.New(logging.ConfigFromEnv("gateway"))
//	defer logger.Close()
//	svc, err := gateway.New(ctx, cfg, logger.Slog())
//
// # Configuration
//
// ConfigFromEnv reads:
//
//   - LOG_LEVEL: debug, info, warn, error (default info)
//   - LOG_FORMAT: text or json (default text)
//   - LOG_DIR: when set, also write JSON logs to {service}_{date}.log
//     in this directory; supports ~ expansion
//   - LOG_QUIET: suppress stderr output (file only)
//
// # Limitations
//
//   - Nothing is redacted. Do not log tokens, password hashes, or
//     message content.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Levels
// =============================================================================

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level. Matching is
// case-insensitive; the empty string means LevelInfo.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config controls where and how a Logger writes. The zero value is a
// text logger on stderr at info level.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// JSON switches stderr output from text to JSON. File output is
	// always JSON.
	JSON bool

	// LogDir enables file logging when non-empty. The file is named
	// {Service}_{YYYY-MM-DD}.log and appended to across restarts.
	LogDir string

	// Service tags every record with a "service" attribute and names
	// the log file.
	Service string

	// Quiet drops stderr output, keeping only the file (if any).
	Quiet bool
}

// ConfigFromEnv builds a Config from LOG_* environment variables.
// A malformed LOG_LEVEL falls back to info rather than failing startup.
func ConfigFromEnv(service string) Config {
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	quiet, _ := strconv.ParseBool(os.Getenv("LOG_QUIET"))
	return Config{
		Level:   level,
		JSON:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: service,
		Quiet:   quiet,
	}
}

// =============================================================================
// Logger
// =============================================================================

// Logger owns the handler stack and the optional log file. Close it once
// at process exit; the *slog.Logger from Slog() is what gets passed
// around and is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger from the config. Failures to open the log
// directory or file are reported on stderr and degrade to stderr-only
// logging; a binary never fails to start because of its log file.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{}
	if cfg.LogDir != "" {
		if file, err := openLogFile(cfg.LogDir, cfg.Service); err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no usable file still needs a valid handler.
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = multiHandler(handlers)
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	l.slog = slog.New(handler)
	return l
}

// Default is the stock logger for the driftchat binaries: ConfigFromEnv
// with the "driftchat" service tag.
func Default() *Logger {
	return New(ConfigFromEnv("driftchat"))
}

// Slog returns the logger handed to services.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// With returns a Logger whose records carry the extra attributes. The
// log file stays owned by the parent; close only the root Logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Close syncs and closes the log file, if one was opened. Safe to call
// on a Logger without a file, and idempotent.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("logging: sync log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("logging: close log file: %w", err)
	}
	return nil
}

// openLogFile creates the log directory if needed and opens the dated
// file in append mode, so restarts within a day share one file.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "driftchat"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// =============================================================================
// Fan-out Handler
// =============================================================================

// multiHandler duplicates records to every handler, so stderr can stay
// human-readable while the file stays machine-parseable.
type multiHandler []slog.Handler

var _ slog.Handler = multiHandler(nil)

func (h multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(h))
	for i, handler := range h {
		out[i] = handler.WithAttrs(attrs)
	}
	return out
}

func (h multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(h))
	for i, handler := range h {
		out[i] = handler.WithGroup(name)
	}
	return out
}
