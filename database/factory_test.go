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
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/itemsvc/credential"
)

type countingTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTokens) FetchToken(_ context.Context, resource string) (credential.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return credential.Token{}, &credential.AuthError{Resource: resource, Err: c.err}
	}
	return credential.Token{Value: "token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func (c *countingTokens) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingObserver struct {
	mu    sync.Mutex
	modes []string
	errs  []error
}

func (o *recordingObserver) ObserveConnection(mode string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes = append(o.modes, mode)
	o.errs = append(o.errs, err)
}

func sqliteConfig(t *testing.T, mode string) *ConnectionConfig {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.Type = TypeSQLite
	cfg.DBName = filepath.Join(t.TempDir(), "items")
	cfg.Mode = mode
	return cfg
}

func newSQLiteFactory(t *testing.T, mode string, tokens credential.TokenProvider, opts ...Option) *ConnectionFactory {
	t.Helper()
	f, err := NewConnectionFactory(sqliteConfig(t, mode), tokens, credential.DefaultResource, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func postgresConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Host = "db.example.com"
	cfg.Username = "app@db"
	cfg.DBName = "items"
	return cfg
}

func TestDescriptorUsesTokenAsPassword(t *testing.T) {
	f, err := NewConnectionFactory(postgresConfig(), &countingTokens{}, credential.DefaultResource)
	require.NoError(t, err)

	d := f.Descriptor("secret-token")
	assert.Equal(t, Descriptor{
		Type:     TypePostgres,
		Host:     "db.example.com",
		Port:     5432,
		Database: "items",
		User:     "app@db",
		Password: "secret-token",
		SSLMode:  "require",
	}, d)
	assert.True(t, d.TLS())
	assert.NotContains(t, d.String(), "secret-token")
}

func TestNewConnectionFactoryRejectsBadConfig(t *testing.T) {
	cfg := postgresConfig()
	cfg.Host = ""
	_, err := NewConnectionFactory(cfg, &countingTokens{}, credential.DefaultResource)
	assert.Error(t, err)

	_, err = NewConnectionFactory(postgresConfig(), nil, credential.DefaultResource)
	assert.Error(t, err)

	cfg = postgresConfig()
	cfg.Mode = "shared"
	_, err = NewConnectionFactory(cfg, &countingTokens{}, credential.DefaultResource)
	assert.Error(t, err)
}

func TestPerRequestFetchesTokenPerConnection(t *testing.T) {
	tokens := &countingTokens{}
	f := newSQLiteFactory(t, ModePerRequest, tokens)

	for i := 0; i < 3; i++ {
		conn, err := f.OpenConnection(context.Background())
		require.NoError(t, err)
		var one int
		require.NoError(t, conn.DB().QueryRowContext(context.Background(), "SELECT 1").Scan(&one))
		assert.Equal(t, 1, one)
		require.NoError(t, conn.Close())
	}
	assert.Equal(t, 3, tokens.Calls())
	assert.Equal(t, &DBStats{}, f.Stats())
}

func TestPooledReusesConnections(t *testing.T) {
	tokens := &countingTokens{}
	f := newSQLiteFactory(t, ModePooled, tokens)

	for i := 0; i < 3; i++ {
		conn, err := f.OpenConnection(context.Background())
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}
	assert.Equal(t, 1, tokens.Calls())
	assert.Equal(t, 1, f.Stats().OpenConns)
}

func TestOpenConnectionAuthFailure(t *testing.T) {
	for _, mode := range []string{ModePerRequest, ModePooled} {
		t.Run(mode, func(t *testing.T) {
			tokens := &countingTokens{err: errors.New("no identity configured")}
			obs := &recordingObserver{}
			f := newSQLiteFactory(t, mode, tokens, WithObserver(obs))

			conn, err := f.OpenConnection(context.Background())
			assert.Nil(t, conn)

			var connErr *ConnectionError
			require.ErrorAs(t, err, &connErr)
			var authErr *credential.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, credential.DefaultResource, authErr.Resource)

			require.Len(t, obs.errs, 1)
			assert.Equal(t, mode, obs.modes[0])
			assert.Error(t, obs.errs[0])
		})
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	f := newSQLiteFactory(t, ModePerRequest, &countingTokens{})
	conn, err := f.OpenConnection(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestHealthCheck(t *testing.T) {
	f := newSQLiteFactory(t, ModePerRequest, &countingTokens{})
	status := f.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, ModePerRequest, status.Mode)
	assert.Empty(t, status.LastError)

	failing := newSQLiteFactory(t, ModePerRequest, &countingTokens{err: errors.New("denied")})
	status = failing.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.LastError, "denied")
}

func TestPoolLifetime(t *testing.T) {
	cases := []struct {
		configured, remaining, want time.Duration
	}{
		{30 * time.Minute, time.Hour, 30 * time.Minute},
		{30 * time.Minute, 10 * time.Minute, 10 * time.Minute},
		{0, 10 * time.Minute, 10 * time.Minute},
		{30 * time.Minute, -time.Minute, 30 * time.Minute},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, poolLifetime(c.configured, c.remaining))
	}
}

func TestPooledLifetimeDerivedOncePerToken(t *testing.T) {
	f := newSQLiteFactory(t, ModePooled, &countingTokens{})

	conn, err := f.OpenConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	exp, ok := f.cache.Expiry(credential.DefaultResource)
	require.True(t, ok)
	f.mu.Lock()
	first := f.boundExpiry
	f.mu.Unlock()
	assert.True(t, first.Equal(exp))

	conn, err = f.OpenConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	f.mu.Lock()
	assert.True(t, f.boundExpiry.Equal(first))
	f.mu.Unlock()
}
