// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the context-first logging interface used across yuki.
// Values carried in ctx (currently the request ID) are attached as fields.
type Logger interface {
	Debug(ctx context.Context, args ...any)
	Debugf(ctx context.Context, format string, args ...any)
	Info(ctx context.Context, args ...any)
	Infof(ctx context.Context, format string, args ...any)
	Warn(ctx context.Context, args ...any)
	Warnf(ctx context.Context, format string, args ...any)
	Error(ctx context.Context, args ...any)
	Errorf(ctx context.Context, format string, args ...any)

	// Named returns a child logger tagged with a component name.
	Named(name string) Logger

	// Sync flushes any buffered entries.
	Sync() error
}

// Modes accepted by ZapConfig.Mode.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Encodings accepted by ZapConfig.Encoding.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// ZapConfig configures Init.
type ZapConfig struct {
	Level        string // debug, info, warn, error
	Mode         string // production or development
	Encoding     string // console or json
	File         string // log file path; empty writes to stderr
	ColorEnabled bool   // colored levels, console encoding only
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// Init builds a zap-backed Logger from cfg.
func Init(cfg ZapConfig) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Mode == ModeDevelopment {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch cfg.Encoding {
	case "", EncodingConsole:
		zc.Encoding = EncodingConsole
		if cfg.ColorEnabled {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	case EncodingJSON:
		zc.Encoding = EncodingJSON
	default:
		return nil, fmt.Errorf("unknown log encoding %q", cfg.Encoding)
	}

	out := "stderr"
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = cfg.File
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{out}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewNop returns a Logger that discards everything. Used in tests.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// New wraps an existing zap logger. Tests use it with zaptest/observer.
func New(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}

// ParseLevel maps a level name to a zap level. An empty name is info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func (l *zapLogger) with(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return l.sugar
	}
	if id := RequestID(ctx); id != "" {
		return l.sugar.With("request_id", id)
	}
	return l.sugar
}

func (l *zapLogger) Debug(ctx context.Context, args ...any) { l.with(ctx).Debug(args...) }
func (l *zapLogger) Info(ctx context.Context, args ...any)  { l.with(ctx).Info(args...) }
func (l *zapLogger) Warn(ctx context.Context, args ...any)  { l.with(ctx).Warn(args...) }
func (l *zapLogger) Error(ctx context.Context, args ...any) { l.with(ctx).Error(args...) }

func (l *zapLogger) Debugf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Debugf(format, args...)
}

func (l *zapLogger) Infof(ctx context.Context, format string, args ...any) {
	l.with(ctx).Infof(format, args...)
}

func (l *zapLogger) Warnf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Warnf(format, args...)
}

func (l *zapLogger) Errorf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Errorf(format, args...)
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{sugar: l.sugar.Named(name)}
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
