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

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type PathFormat int

const (
	PathFormatShortRelative PathFormat = iota
	PathFormatFilenameOnly
)

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	registryMu    sync.RWMutex
	registry      = map[string]*logrus.Logger{}
	defaultLevel  = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	defaultFormat = normalizeFormat(EnvDefaultString("LOG_FORMAT", "text"))
)

var defaultOutput io.Writer = os.Stdout

func normalizeFormat(format string) string {
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		return "json"
	}
	return "text"
}

// ParseLogLevel maps a level name to a logrus level, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConfigureLogLevel sets the level of every registered logger and of the
// loggers created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultLevel = lvl
	for _, l := range registry {
		l.SetLevel(lvl)
	}
	logrus.SetLevel(lvl)
}

// ConfigureLogFormat switches every logger between "text" and "json".
func ConfigureLogFormat(format string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultFormat = normalizeFormat(format)
	for name, l := range registry {
		l.SetFormatter(newFormatter(name, defaultFormat))
	}
}

// ConfigureLogOutput redirects every logger to w.
func ConfigureLogOutput(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultOutput = w
	for _, l := range registry {
		l.SetOutput(w)
	}
}

// NewLogger returns the logger registered under name, creating it on first
// use.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}
	l := logrus.New()
	l.SetOutput(defaultOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	l.SetFormatter(newFormatter(name, defaultFormat))
	registry[name] = l
	return l
}

func newFormatter(name, format string) logrus.Formatter {
	if format == "json" {
		return &JSONLogFormatter{LoggerName: name, TimestampFormat: defaultTimestampFormat}
	}
	return &Log4jColorFormatter{
		LoggerName:      name,
		TimestampFormat: defaultTimestampFormat,
		PathFmt:         PathFormatShortRelative,
		ColorCaller:     true,
		NameWidth:       10,
	}
}

// Log4jColorFormatter renders "time LEVEL pid - [main] name file:line : msg k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
	ColorCaller     bool
	NameWidth       int
	DisableColors   bool
}

func (f *Log4jColorFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return defaultTimestampFormat
}

func (f *Log4jColorFormatter) paint(s, code string) string {
	if f.DisableColors {
		return s
	}
	return colorWrap(s, code)
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.tsFormat())
	lvl := padLeft(strings.ToUpper(entry.Level.String()), 7)
	if !f.DisableColors {
		lvl = colorLevel(lvl, entry.Level)
	}
	pid := f.paint(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta)
	thread := f.paint("[main]", ansiMagenta)
	name := f.paint(padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth), ansiCyan)

	callerInfo := ""
	if entry.Caller != nil {
		fileLine := " " + callerPath(entry.Caller.File, f.PathFmt) + fmt.Sprintf(":%d", entry.Caller.Line)
		if f.ColorCaller {
			fileLine = f.paint(fileLine, ansiFaint)
		}
		callerInfo = fileLine
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s - %s %s%s %s %s", ts, lvl, pid, thread, name, callerInfo, f.paint(":", ansiFaint), entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", f.paint(k, ansiBlue), entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter writes one JSON object per entry. HTTP access fields are
// lifted to top-level keys, other fields go under "fields".
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

type jsonLogRecord struct {
	Time        string                 `json:"time"`
	Level       string                 `json:"level"`
	Model       string                 `json:"model"`
	Caller      string                 `json:"caller,omitempty"`
	Message     string                 `json:"message"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	Method      string                 `json:"method,omitempty"`
	Path        string                 `json:"path,omitempty"`
	StatusCode  int                    `json:"status_code,omitempty"`
	LatencyTime string                 `json:"latency_time,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFormat),
		Level:   strings.ToLower(entry.Level.String()),
		Model:   f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = fmt.Sprintf("%s:%d", callerPath(entry.Caller.File, PathFormatShortRelative), entry.Caller.Line)
	}

	extra := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		s, isString := v.(string)
		switch {
		case k == "req_uri" && isString:
			rec.Path = s
		case k == "req_method" && isString:
			rec.Method = s
		case k == "client_ip" && isString:
			rec.ClientIP = s
		case k == "latency_time" && isString:
			rec.LatencyTime = s
		case k == "status_code":
			switch n := v.(type) {
			case int:
				rec.StatusCode = n
			case int64:
				rec.StatusCode = int(n)
			default:
				extra[k] = v
			}
		default:
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		rec.Fields = extra
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func colorWrap(s, code string) string { return code + s + ansiReset }

func colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorWrap(s, ansiRed)
	case logrus.WarnLevel:
		return colorWrap(s, ansiYellow)
	case logrus.InfoLevel:
		return colorWrap(s, ansiGreen)
	case logrus.DebugLevel:
		return colorWrap(s, ansiBlue)
	default:
		return colorWrap(s, ansiMagenta)
	}
}

func padLeft(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(r)) + s
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func callerPath(file string, pf PathFormat) string {
	if pf == PathFormatFilenameOnly {
		return filepath.Base(file)
	}
	parts := strings.Split(filepath.ToSlash(file), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return parts[0]
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvDefaultString returns the value of key, or def when unset or empty.
func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FormatLatency renders d rounded to microseconds, as used in access logs.
func FormatLatency(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
