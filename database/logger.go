/*
 * Copyright 2025 tomoncle.
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

package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/itemsvc/utils"
)

// Logger is the logging surface of the database package. Fields are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NewLogger adapts a logrus logger or entry.
func NewLogger(l logrus.FieldLogger) Logger {
	return &logrusLogger{l: l}
}

// DefaultLogger returns the named "DATABASE" logger.
func DefaultLogger() Logger {
	return NewLogger(utils.NewLogger("DATABASE"))
}

type logrusLogger struct {
	l logrus.FieldLogger
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.l.WithFields(toFields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.l.WithFields(toFields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.l.WithFields(toFields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.l.WithFields(toFields(fields)).Error(msg)
}

func toFields(fields []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
