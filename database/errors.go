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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConnectionError wraps a failure to obtain a credential or to open the
// physical connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaInitError wraps a failed startup migration.
type SchemaInitError struct {
	Version string
	Err     error
}

func (e *SchemaInitError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("schema initialization failed: %v", e.Err)
	}
	return fmt.Sprintf("schema initialization failed at migration %s: %v", e.Version, e.Err)
}

func (e *SchemaInitError) Unwrap() error { return e.Err }

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTextErr
	AuthFailedErr
	ConnectionLostErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoColumnErr:                 "no_column",
	NoTableErr:                  "no_table",
	ExistTableErr:               "exist_table",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_violation",
	DataTruncatedErr:            "data_truncated",
	InvalidTextErr:              "invalid_text",
	AuthFailedErr:               "auth_failed",
	ConnectionLostErr:           "connection_lost",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return "unknown"
}

var pqCodes = map[pq.ErrorCode]SQLError{
	"42703": NoColumnErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"22P02": InvalidTextErr,
	"28000": AuthFailedErr,
	"28P01": AuthFailedErr,
}

var mysqlNumbers = map[uint16]SQLError{
	1054: NoColumnErr,
	1146: NoTableErr,
	1050: ExistTableErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1406: DataTruncatedErr,
	1366: InvalidTextErr,
	1045: AuthFailedErr,
}

// ClassifySQLError maps a driver error to an SQLError. The boolean is false
// when err did not come from the database.
func ClassifySQLError(err error) (bool, SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if class, ok := pqCodes[pqErr.Code]; ok {
			return true, class
		}
		if pqErr.Code.Class() == "08" {
			return true, ConnectionLostErr
		}
		return true, UnknownErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if class, ok := mysqlNumbers[mysqlErr.Number]; ok {
			return true, class
		}
		return true, UnknownErr
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true, ConnectionLostErr
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return true, CheckConstraintViolationErr
	}
	return false, UnknownErr
}
