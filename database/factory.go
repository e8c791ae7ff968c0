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
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/tomoncle/itemsvc/credential"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// Observer is notified after every OpenConnection attempt.
type Observer interface {
	ObserveConnection(mode string, duration time.Duration, err error)
}

// Option configures a ConnectionFactory.
type Option func(*ConnectionFactory)

// WithLogger sets the factory logger.
func WithLogger(l Logger) Option {
	return func(f *ConnectionFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithObserver registers a connection observer.
func WithObserver(o Observer) Option {
	return func(f *ConnectionFactory) { f.observer = o }
}

// WithRefreshSkew sets how long before expiry a cached token is renewed in
// pooled mode.
func WithRefreshSkew(d time.Duration) Option {
	return func(f *ConnectionFactory) { f.skew = d }
}

// ConnectionFactory produces authenticated connections. It is safe for
// concurrent use.
type ConnectionFactory struct {
	cfg      *ConnectionConfig
	tokens   credential.TokenProvider
	cache    *credential.CachingProvider
	resource string
	skew     time.Duration
	logger   Logger
	observer Observer

	connector driver.Connector

	mu   sync.Mutex
	pool *bun.DB

	// boundExpiry is the token expiry the pool lifetime was last derived from.
	boundExpiry time.Time
}

// NewConnectionFactory validates cfg and prepares the dialect connector.
// In pooled mode tokens is wrapped in a CachingProvider.
func NewConnectionFactory(cfg *ConnectionConfig, tokens credential.TokenProvider, resource string, opts ...Option) (*ConnectionFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(false); err != nil {
		return nil, err
	}

	f := &ConnectionFactory{
		cfg:      cfg,
		tokens:   tokens,
		resource: resource,
		skew:     5 * time.Minute,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if cfg.Mode == ModePooled {
		f.cache = credential.NewCachingProvider(tokens, f.skew)
		f.tokens = f.cache
	}

	connector, err := f.newConnector()
	if err != nil {
		return nil, err
	}
	f.connector = connector
	return f, nil
}

// Config returns the connection configuration.
func (f *ConnectionFactory) Config() *ConnectionConfig {
	return f.cfg
}

// Descriptor combines the configuration with token as the password.
func (f *ConnectionFactory) Descriptor(token string) Descriptor {
	return Descriptor{
		Type:     f.cfg.Type,
		Host:     f.cfg.Host,
		Port:     f.cfg.Port,
		Database: f.cfg.DBName,
		User:     f.cfg.Username,
		Password: token,
		SSLMode:  f.cfg.SSLMode,
	}
}

// OpenConnection returns a ready connection. The caller must Close it.
func (f *ConnectionFactory) OpenConnection(ctx context.Context) (*Conn, error) {
	start := time.Now()
	var (
		conn *Conn
		err  error
	)
	if f.cfg.Mode == ModePooled {
		conn, err = f.lease(ctx)
	} else {
		conn, err = f.dial(ctx)
	}
	if f.observer != nil {
		f.observer.ObserveConnection(f.cfg.Mode, time.Since(start), err)
	}
	if err != nil {
		f.logger.Error("Failed to open database connection", "mode", f.cfg.Mode, "type", f.cfg.Type, "error", err)
	}
	return conn, err
}

func (f *ConnectionFactory) dial(ctx context.Context) (*Conn, error) {
	sqlDB := sql.OpenDB(f.connector)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := f.ping(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	db := f.newBunDB(sqlDB)
	return NewConn(db, db.Close), nil
}

func (f *ConnectionFactory) lease(ctx context.Context) (*Conn, error) {
	db := f.sharedPool()

	connCtx := ctx
	if f.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, f.cfg.ConnectTimeout)
		defer cancel()
	}
	bc, err := db.Conn(connCtx)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	f.boundLifetime(db)
	return NewConn(&bc, bc.Close), nil
}

func (f *ConnectionFactory) sharedPool() *bun.DB {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pool != nil {
		return f.pool
	}

	sqlDB := sql.OpenDB(f.connector)
	maxOpen := f.cfg.MaxOpenConns
	if f.cfg.Type == TypeSQLite {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(f.cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(f.cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(f.cfg.ConnMaxIdleTime)

	f.pool = f.newBunDB(sqlDB)
	f.logger.Info("Database pool created", "type", f.cfg.Type, "host", f.cfg.Host, "max_open_conns", maxOpen)
	return f.pool
}

// boundLifetime keeps pooled connections from outliving the token they
// logged in with. The lifetime is derived once per token, when a new expiry
// is first seen, not on every lease.
func (f *ConnectionFactory) boundLifetime(db *bun.DB) {
	if f.cache == nil {
		return
	}
	exp, ok := f.cache.Expiry(f.resource)
	if !ok || exp.IsZero() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp.Equal(f.boundExpiry) {
		return
	}
	f.boundExpiry = exp
	db.SetConnMaxLifetime(poolLifetime(f.cfg.ConnMaxLifetime, time.Until(exp)))
}

// poolLifetime caps the configured lifetime at the validity left on a token.
func poolLifetime(configured, remaining time.Duration) time.Duration {
	if remaining > 0 && (configured <= 0 || remaining < configured) {
		return remaining
	}
	return configured
}

func (f *ConnectionFactory) ping(ctx context.Context, sqlDB *sql.DB) error {
	if f.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.ConnectTimeout)
		defer cancel()
	}
	return sqlDB.PingContext(ctx)
}

func (f *ConnectionFactory) newBunDB(sqlDB *sql.DB) *bun.DB {
	db := bun.NewDB(sqlDB, f.dialect())

	if f.cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if f.cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(f.cfg.SlowQueryTime, f.logger))
	}
	return db
}

func (f *ConnectionFactory) dialect() schema.Dialect {
	switch f.cfg.Type {
	case TypeMySQL:
		return mysqldialect.New()
	case TypeSQLite:
		return sqlitedialect.New()
	default:
		return pgdialect.New()
	}
}

// HealthCheck opens a connection, runs a trivial query and releases it.
func (f *ConnectionFactory) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Mode: f.cfg.Mode, LastCheckTime: start}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := f.OpenConnection(ctxTimeout)
	if err == nil {
		var one int
		err = conn.DB().QueryRowContext(ctxTimeout, "SELECT 1").Scan(&one)
		_ = conn.Close()
	}
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

// Stats returns pool statistics. Per-request mode has no pool.
func (f *ConnectionFactory) Stats() *DBStats {
	f.mu.Lock()
	pool := f.pool
	f.mu.Unlock()
	if pool == nil {
		return &DBStats{}
	}
	s := pool.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

// Close closes the shared pool, if one was created.
func (f *ConnectionFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pool == nil {
		return nil
	}
	err := f.pool.Close()
	f.pool = nil
	return err
}
