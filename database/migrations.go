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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomoncle/itemsvc/types"
	"github.com/uptrace/bun"
)

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk,type:varchar(32)"`
	Name        string    `bun:"name,type:varchar(255)"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description,type:varchar(255)"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// Migrations returns the schema history of the items service.
func Migrations() []MigrationItem {
	return []MigrationItem{
		{
			Version:     "001",
			Name:        "create_items_table",
			Description: "Create the items table",
			Up:          createItemsTable,
		},
	}
}

func createItemsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*types.Item)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// SchemaState is a point-in-time copy of SchemaStatus.
type SchemaState struct {
	Checked   bool      `json:"checked"`
	Ready     bool      `json:"ready"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// SchemaStatus records the outcome of the last EnsureSchema run.
type SchemaStatus struct {
	mu    sync.RWMutex
	state SchemaState
}

func (s *SchemaStatus) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SchemaState{Checked: true, Ready: err == nil, CheckedAt: time.Now()}
	if err != nil {
		s.state.Error = err.Error()
	}
}

// State returns the recorded outcome.
func (s *SchemaStatus) State() SchemaState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SchemaInitializer creates the storage schema at process start.
type SchemaInitializer struct {
	factory    *ConnectionFactory
	logger     Logger
	migrations []MigrationItem
	status     *SchemaStatus
}

// NewSchemaInitializer returns an initializer running Migrations().
func NewSchemaInitializer(factory *ConnectionFactory, logger Logger) *SchemaInitializer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &SchemaInitializer{
		factory:    factory,
		logger:     logger,
		migrations: Migrations(),
		status:     &SchemaStatus{},
	}
}

// Status exposes the outcome of EnsureSchema.
func (si *SchemaInitializer) Status() *SchemaStatus {
	return si.status
}

// EnsureSchema applies every pending migration over one connection. Running
// it again once the schema exists is a no-op. The error is also recorded in
// Status.
func (si *SchemaInitializer) EnsureSchema(ctx context.Context) error {
	err := si.ensure(ctx)
	si.status.record(err)
	if err != nil {
		si.logger.Error("Schema initialization failed", "error", err)
		return err
	}
	si.logger.Info("Database migrations completed!")
	return nil
}

func (si *SchemaInitializer) ensure(ctx context.Context) error {
	conn, err := si.factory.OpenConnection(ctx)
	if err != nil {
		return &SchemaInitError{Err: err}
	}
	defer func() { _ = conn.Close() }()

	mm := NewMigrationManager(conn.DB(), si.logger)
	mm.migrations = si.migrations
	return mm.RunMigrations(ctx)
}

// MigrationManager runs migrations against one bun connection.
type MigrationManager struct {
	db         bun.IDB
	logger     Logger
	migrations []MigrationItem
}

// NewMigrationManager constructs a MigrationManager over db.
func NewMigrationManager(db bun.IDB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &MigrationManager{db: db, logger: logger, migrations: Migrations()}
}

// RunMigrations creates the migration tracking table if needed and executes
// all pending migrations in ascending version order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return &SchemaInitError{Err: fmt.Errorf("database not initialized")}
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return &SchemaInitError{Err: fmt.Errorf("failed to create migrations table: %w", err)}
	}

	migrations := append([]MigrationItem(nil), mm.migrations...)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return &SchemaInitError{Version: migration.Version, Err: err}
		}
	}
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				mm.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err := migration.Up(ctx, tx); err != nil {
		return err
	}

	record := &Migration{
		Version:     migration.Version,
		Name:        migration.Name,
		AppliedAt:   time.Now(),
		Description: migration.Description,
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}
