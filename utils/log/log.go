/*
 * Copyright 2026 The fbsql Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package log is a thin wrapper around logrus shared by all fbsql packages.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields for structured logging.
type Fields = logrus.Fields

// Entry aliases logrus.Entry.
type Entry = logrus.Entry

// Log levels re-exported for callers.
const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

var std = logrus.New()

// StandardLogger returns the shared logger instance.
func StandardLogger() *logrus.Logger {
	return std
}

// SetOutput sets the output destination of the shared logger.
func SetOutput(out io.Writer) {
	std.SetOutput(out)
}

// SetLevel sets the log level of the shared logger.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// GetLevel returns the log level of the shared logger.
func GetLevel() logrus.Level {
	return std.GetLevel()
}

// WithField starts an entry with a single field.
func WithField(key string, value interface{}) *Entry {
	return std.WithField(key, value)
}

// WithFields starts an entry with multiple fields.
func WithFields(fields Fields) *Entry {
	return std.WithFields(fields)
}

// WithError starts an entry with the err field set.
func WithError(err error) *Entry {
	return std.WithError(err)
}

// Debug logs at debug level.
func Debug(args ...interface{}) {
	std.Debug(args...)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Info logs at info level.
func Info(args ...interface{}) {
	std.Info(args...)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warn logs at warning level.
func Warn(args ...interface{}) {
	std.Warn(args...)
}

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Error logs at error level.
func Error(args ...interface{}) {
	std.Error(args...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}
