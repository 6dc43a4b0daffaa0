// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// kgoLogger adapts a zap logger to kgo.Logger so the producer and the
// franz-go client log through it.
type kgoLogger struct {
	logger *zap.Logger
	level  kgo.LogLevel
}

var _ kgo.Logger = (*kgoLogger)(nil)

func (l *kgoLogger) Level() kgo.LogLevel {
	return l.level
}

func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 == len(keyvals) {
			fields = append(fields, zap.Any(key, "(MISSING)"))
			break
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case kgo.LogLevelError:
		l.logger.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.logger.Info(msg, fields...)
	case kgo.LogLevelDebug:
		l.logger.Debug(msg, fields...)
	}
}

// parseLevel maps a level name to the zap and franz-go levels.
func parseLevel(name string) (zapcore.Level, kgo.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, kgo.LogLevelDebug, nil
	case "info":
		return zapcore.InfoLevel, kgo.LogLevelInfo, nil
	case "warn", "warning":
		return zapcore.WarnLevel, kgo.LogLevelWarn, nil
	case "error":
		return zapcore.ErrorLevel, kgo.LogLevelError, nil
	case "none", "off":
		return zapcore.FatalLevel, kgo.LogLevelNone, nil
	default:
		return 0, 0, fmt.Errorf("unknown log level %q", name)
	}
}

// newZapLogger builds the stderr logger used by all commands.
func newZapLogger(level string) (*zap.Logger, error) {
	zl, _, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zl)
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

// newKgoLogger wraps logger for the producer at the given level.
func newKgoLogger(logger *zap.Logger, level string) (*kgoLogger, error) {
	_, kl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return &kgoLogger{logger: logger, level: kl}, nil
}
