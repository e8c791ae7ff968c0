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

package repository

import (
	"context"

	"github.com/tomoncle/itemsvc/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

type itemRepositoryImpl struct {
	db bun.IDB
}

// NewItemRepository returns an item repository bound to one connection.
func NewItemRepository(db bun.IDB) ItemRepository {
	return &itemRepositoryImpl{db: db}
}

func (r *itemRepositoryImpl) returning() bool {
	return r.db.Dialect().Features().Has(feature.Returning)
}

func (r *itemRepositoryImpl) Create(ctx context.Context, in types.ItemInput) (*types.Item, error) {
	item := &types.Item{Name: in.Name, Description: in.Description}
	if r.returning() {
		if err := r.db.NewInsert().Model(item).Returning("*").Scan(ctx); err != nil {
			return nil, err
		}
		return item, nil
	}

	if _, err := r.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return nil, err
	}
	return r.get(ctx, item.ID)
}

func (r *itemRepositoryImpl) List(ctx context.Context) ([]types.Item, error) {
	items := make([]types.Item, 0)
	if err := r.db.NewSelect().Model(&items).Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepositoryImpl) Update(ctx context.Context, id int64, in types.ItemInput) (*types.Item, error) {
	item := &types.Item{ID: id, Name: in.Name, Description: in.Description}
	query := r.db.NewUpdate().
		Model(item).
		Column("name", "description").
		WherePK()
	if r.returning() {
		if err := query.Returning("*").Scan(ctx); err != nil {
			return nil, err
		}
		return item, nil
	}

	if _, err := query.Exec(ctx); err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *itemRepositoryImpl) Delete(ctx context.Context, id int64) (*types.Item, error) {
	if r.returning() {
		item := &types.Item{ID: id}
		if err := r.db.NewDelete().Model(item).WherePK().Returning("*").Scan(ctx); err != nil {
			return nil, err
		}
		return item, nil
	}

	item, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.NewDelete().Model(item).WherePK().Exec(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

// get reads one row back for dialects without RETURNING. It returns
// sql.ErrNoRows when the row does not exist.
func (r *itemRepositoryImpl) get(ctx context.Context, id int64) (*types.Item, error) {
	item := new(types.Item)
	if err := r.db.NewSelect().Model(item).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return item, nil
}
