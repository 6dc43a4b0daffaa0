// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import "github.com/twmb/franz-go/pkg/kgo"

// nopLogger, the default logger, drops everything.
type nopLogger struct{}

func (*nopLogger) Level() kgo.LogLevel { return kgo.LogLevelNone }
func (*nopLogger) Log(kgo.LogLevel, string, ...any) {
}

// logAt logs only when the logger is enabled for level, so hot paths do not
// build keyvals for a disabled level.
func logAt(l kgo.Logger, level kgo.LogLevel, msg string, keyvals ...any) {
	if level > l.Level() {
		return
	}
	l.Log(level, msg, keyvals...)
}
