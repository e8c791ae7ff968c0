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
	"sync"

	"github.com/uptrace/bun"
)

// Conn is one acquired database connection. In per-request mode it owns a
// dedicated physical connection; in pooled mode it holds a connection leased
// from the shared pool. Close must be called exactly once on every path;
// further calls return the first result.
type Conn struct {
	db    bun.IDB
	close func() error
	once  sync.Once
	err   error
}

// NewConn wraps an existing bun handle. closeFn runs at most once.
func NewConn(db bun.IDB, closeFn func() error) *Conn {
	return &Conn{db: db, close: closeFn}
}

// DB returns the query interface bound to this connection.
func (c *Conn) DB() bun.IDB {
	return c.db
}

// Close releases the connection.
func (c *Conn) Close() error {
	c.once.Do(func() {
		if c.close != nil {
			c.err = c.close()
		}
	})
	return c.err
}
