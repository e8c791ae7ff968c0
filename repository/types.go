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
)

// ItemRepository issues one statement per call against the items table.
// Missing rows are reported as sql.ErrNoRows.
type ItemRepository interface {
	// Create inserts a row and returns it with the generated id.
	Create(ctx context.Context, in types.ItemInput) (*types.Item, error)

	// List returns every row in storage order.
	List(ctx context.Context) ([]types.Item, error)

	// Update replaces name and description and returns the new row.
	Update(ctx context.Context, id int64, in types.ItemInput) (*types.Item, error)

	// Delete removes a row and returns it as it was.
	Delete(ctx context.Context, id int64) (*types.Item, error)
}
