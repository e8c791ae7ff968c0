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
	"time"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

const (
	// ModePerRequest opens a new physical connection, with a fresh token,
	// for every OpenConnection call.
	ModePerRequest = "per_request"
	// ModePooled shares one pool whose connections are authenticated with
	// cached tokens and recycled before the token expires.
	ModePooled = "pooled"
)

// ConnectionConfig describes how to reach the database. Everything except the
// password is configuration; the password is the credential token.
type ConnectionConfig struct {
	Type            string        `yaml:"type" env:"DB_TYPE" env-default:"postgres"` // postgres、mysql、sqlite
	Host            string        `yaml:"host" env:"AZURE_POSTGRESQL_HOST"`
	Port            int           `yaml:"port" env:"AZURE_POSTGRESQL_PORT"`
	Username        string        `yaml:"username" env:"AZURE_POSTGRESQL_USER"`
	DBName          string        `yaml:"dbname" env:"AZURE_POSTGRESQL_DATABASE"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE" env-default:"require"`
	Mode            string        `yaml:"mode" env:"DB_CONNECTION_MODE" env-default:"per_request"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" env-default:"5m"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT" env-default:"30s"`
	EnableQueryLog  bool          `yaml:"enable_query_log" env:"DB_ENABLE_QUERY_LOG"`
	SlowQueryTime   time.Duration `yaml:"slow_query_time" env:"DB_SLOW_QUERY_TIME" env-default:"2s"`
}

// DefaultConnectionConfig returns a PostgreSQL config in per-request mode.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:            TypePostgres,
		Port:            5432,
		SSLMode:         "require",
		Mode:            ModePerRequest,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		SlowQueryTime:   2 * time.Second,
	}
}

// Normalize fills dialect dependent defaults left empty by the loader.
func (c *ConnectionConfig) Normalize() {
	switch c.Type {
	case "postgresql":
		c.Type = TypePostgres
	case "sqlite3":
		c.Type = TypeSQLite
	}
	if c.Port == 0 {
		switch c.Type {
		case TypePostgres:
			c.Port = 5432
		case TypeMySQL:
			c.Port = 3306
		}
	}
	if c.Mode == "" {
		c.Mode = ModePerRequest
	}
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
}

// Validate checks the config. tokenAuth reports whether the password will be
// a cloud-issued token, in which case TLS is mandatory.
func (c *ConnectionConfig) Validate(tokenAuth bool) error {
	supportedTypes := []string{TypePostgres, TypeMySQL, TypeSQLite}
	supported := false
	for _, t := range supportedTypes {
		if c.Type == t {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database type: %s, supported types: %v", c.Type, supportedTypes)
	}
	if c.Mode != ModePerRequest && c.Mode != ModePooled {
		return fmt.Errorf("unsupported connection mode: %s, supported modes: %v", c.Mode, []string{ModePerRequest, ModePooled})
	}
	if c.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Type == TypeSQLite {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Username == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if tokenAuth && c.SSLMode == "disable" {
		return fmt.Errorf("sslmode=disable is not allowed with token authentication")
	}
	return nil
}

// Descriptor is the full set of parameters for one physical connection.
type Descriptor struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// TLS reports whether the connection is encrypted.
func (d Descriptor) TLS() bool {
	return d.Type != TypeSQLite && d.SSLMode != "disable"
}

// String omits the password so descriptors can be logged.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", d.Type, d.User, d.Host, d.Port, d.Database, d.SSLMode)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Mode          string        `json:"mode"`
	ResponseTime  time.Duration `json:"response_time"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool stats. It is empty in per-request mode.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}
