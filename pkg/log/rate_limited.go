// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedLogger forwards at most one message per interval to logger.
// Messages that are suppressed are counted, and the count is reported with
// the next message that gets through.
type rateLimitedLogger struct {
	logger  Logger
	limit   *rate.Limiter
	dropped atomic.Uint64
}

func (rl *rateLimitedLogger) allow(level Level) (suppressed uint64, ok bool) {
	if !rl.logger.IsLogging(level) {
		return 0, false
	}
	if !rl.limit.Allow() {
		rl.dropped.Add(1)
		return 0, false
	}
	return rl.dropped.Swap(0), true
}

func (rl *rateLimitedLogger) emit(level Level, format string, v ...any) {
	n, ok := rl.allow(level)
	if !ok {
		return
	}
	if n > 0 {
		format += " (%d similar messages suppressed)"
		v = append(v, n)
	}
	switch level {
	case Debug:
		rl.logger.Debugf(format, v...)
	case Info:
		rl.logger.Infof(format, v...)
	default:
		rl.logger.Warningf(format, v...)
	}
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	rl.emit(Debug, format, v...)
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	rl.emit(Info, format, v...)
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	rl.emit(Warning, format, v...)
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// globalLogger resolves the global logger on every call, so that a
// rate-limited logger created at package init follows later SetTarget and
// SetLevel calls.
type globalLogger struct{}

func (globalLogger) Debugf(format string, v ...any) {
	Log().DebugfAtDepth(3, format, v...)
}

func (globalLogger) Infof(format string, v ...any) {
	Log().InfofAtDepth(3, format, v...)
}

func (globalLogger) Warningf(format string, v ...any) {
	Log().WarningfAtDepth(3, format, v...)
}

func (globalLogger) IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(globalLogger{}, every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}

// SetInterval changes how often a logger returned by RateLimitedLogger or
// BasicRateLimitedLogger may log. A zero interval removes the limit. Other
// loggers are left unchanged.
func SetInterval(l Logger, every time.Duration) {
	if rl, ok := l.(*rateLimitedLogger); ok {
		rl.limit.SetLimit(rate.Every(every))
	}
}
