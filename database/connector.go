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
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type dialFunc func(ctx context.Context, d Descriptor) (driver.Conn, error)

// tokenConnector fetches a credential for every physical connection it opens,
// so database/sql never reuses a stale password when it dials.
type tokenConnector struct {
	factory *ConnectionFactory
	drv     driver.Driver
	dial    dialFunc
}

var _ driver.Connector = (*tokenConnector)(nil)

func (c *tokenConnector) Connect(ctx context.Context) (driver.Conn, error) {
	tok, err := c.factory.tokens.FetchToken(ctx, c.factory.resource)
	if err != nil {
		return nil, err
	}
	return c.dial(ctx, c.factory.Descriptor(tok.Value))
}

func (c *tokenConnector) Driver() driver.Driver {
	return c.drv
}

func (f *ConnectionFactory) newConnector() (driver.Connector, error) {
	timeout := f.cfg.ConnectTimeout
	switch f.cfg.Type {
	case TypePostgres:
		return &tokenConnector{
			factory: f,
			drv:     pq.Driver{},
			dial: func(ctx context.Context, d Descriptor) (driver.Conn, error) {
				pc, err := pq.NewConnector(postgresDSN(d, timeout))
				if err != nil {
					return nil, err
				}
				return pc.Connect(ctx)
			},
		}, nil
	case TypeMySQL:
		return &tokenConnector{
			factory: f,
			drv:     mysql.MySQLDriver{},
			dial: func(ctx context.Context, d Descriptor) (driver.Conn, error) {
				mc, err := mysql.NewConnector(mysqlConfig(d, timeout))
				if err != nil {
					return nil, err
				}
				return mc.Connect(ctx)
			},
		}, nil
	case TypeSQLite:
		drv, err := sqliteDriver()
		if err != nil {
			return nil, err
		}
		dsn := sqliteDSN(f.cfg.DBName)
		return &tokenConnector{
			factory: f,
			drv:     drv,
			dial: func(ctx context.Context, _ Descriptor) (driver.Conn, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return drv.Open(dsn)
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", f.cfg.Type)
	}
}

func postgresDSN(d Descriptor, timeout time.Duration) string {
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	if timeout > 0 {
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// mysqlConfig maps libpq style sslmode values onto the mysql driver's tls
// setting. Entra tokens are sent with the cleartext plugin, only over TLS.
func mysqlConfig(d Descriptor, timeout time.Duration) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.Timeout = timeout
	switch d.SSLMode {
	case "disable":
		cfg.TLSConfig = "false"
	case "allow", "prefer":
		cfg.TLSConfig = "preferred"
	case "verify-ca", "verify-full":
		cfg.TLSConfig = "true"
	default:
		cfg.TLSConfig = "skip-verify"
	}
	cfg.AllowCleartextPasswords = d.TLS()
	return cfg
}

func sqliteDSN(name string) string {
	if name == ":memory:" || strings.HasPrefix(name, "file:") || strings.HasSuffix(name, ".db") {
		return name
	}
	return fmt.Sprintf("%s.db", name)
}

func sqliteDriver() (driver.Driver, error) {
	db, err := sql.Open(sqliteshim.ShimName, "")
	if err != nil {
		return nil, err
	}
	drv := db.Driver()
	_ = db.Close()
	return drv, nil
}
