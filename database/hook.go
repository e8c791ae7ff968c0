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
	"context"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var otherColor = color.New(color.FgRed)

// SlowQueryHook warns about successful queries slower than slowTime.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
	now      func() time.Time
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns a hook logging through logger.
func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: slowTime, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	duration := now().Sub(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", colorizeQuery(event),
		)
	}
}

func colorizeQuery(event *bun.QueryEvent) string {
	c, ok := operationColors[event.Operation()]
	if !ok {
		c = otherColor
	}
	return c.Sprint(event.Query)
}
