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

package itemsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/itemsvc/database"
	"github.com/tomoncle/itemsvc/repository"
	"github.com/tomoncle/itemsvc/types"
	"github.com/uptrace/bun"
)

const (
	OpCreate = "create"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ConnectionOpener hands out one connection per call.
type ConnectionOpener interface {
	OpenConnection(ctx context.Context) (*database.Conn, error)
}

type ItemService interface {
	// Create validates in and stores a new item.
	Create(ctx context.Context, in types.ItemInput) (*types.Item, error)

	// List returns every stored item, never nil.
	List(ctx context.Context) ([]types.Item, error)

	// Update replaces both fields of the item with the given id.
	Update(ctx context.Context, id int64, in types.ItemInput) (*types.Item, error)

	// Delete removes the item with the given id and returns it.
	Delete(ctx context.Context, id int64) (*types.Item, error)
}

type itemServiceImpl struct {
	conns   ConnectionOpener
	logger  logrus.FieldLogger
	newRepo func(bun.IDB) repository.ItemRepository
}

// NewItemService returns an ItemService that opens a connection for every
// call and releases it before returning.
func NewItemService(conns ConnectionOpener, logger logrus.FieldLogger) ItemService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &itemServiceImpl{
		conns:   conns,
		logger:  logger,
		newRepo: repository.NewItemRepository,
	}
}

func (s *itemServiceImpl) Create(ctx context.Context, in types.ItemInput) (*types.Item, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	var item *types.Item
	err := s.withRepository(ctx, OpCreate, func(repo repository.ItemRepository) (err error) {
		item, err = repo.Create(ctx, in)
		return err
	})
	return item, err
}

func (s *itemServiceImpl) List(ctx context.Context) ([]types.Item, error) {
	var items []types.Item
	err := s.withRepository(ctx, OpList, func(repo repository.ItemRepository) (err error) {
		items, err = repo.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []types.Item{}
	}
	return items, nil
}

func (s *itemServiceImpl) Update(ctx context.Context, id int64, in types.ItemInput) (*types.Item, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	var item *types.Item
	err := s.withRepository(ctx, OpUpdate, func(repo repository.ItemRepository) (err error) {
		item, err = repo.Update(ctx, id, in)
		return err
	})
	return item, err
}

func (s *itemServiceImpl) Delete(ctx context.Context, id int64) (*types.Item, error) {
	var item *types.Item
	err := s.withRepository(ctx, OpDelete, func(repo repository.ItemRepository) (err error) {
		item, err = repo.Delete(ctx, id)
		return err
	})
	return item, err
}

// withRepository runs fn on a fresh connection and closes it on every path.
func (s *itemServiceImpl) withRepository(ctx context.Context, op string, fn func(repository.ItemRepository) error) error {
	conn, err := s.conns.OpenConnection(ctx)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Error("Failed to open database connection")
		return fmt.Errorf("%s item: %w", op, err)
	}

	err = fn(s.newRepo(conn.DB()))
	if closeErr := conn.Close(); closeErr != nil {
		s.logger.WithFields(logrus.Fields{"op": op, "error": closeErr.Error()}).Warn("Failed to close database connection")
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		_, class := database.ClassifySQLError(err)
		s.logger.WithFields(logrus.Fields{"op": op, "sql_error": class.String(), "error": err.Error()}).Error("Item query failed")
		return fmt.Errorf("%s item: %w", op, err)
	}
	return nil
}
