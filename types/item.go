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

package types

import "github.com/uptrace/bun"

// Item is one row of the items table.
type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Name        string `bun:"name,type:varchar(255),notnull" json:"name"`
	Description string `bun:"description,type:text" json:"description"`
}

// ItemInput is the client supplied part of an item.
type ItemInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
