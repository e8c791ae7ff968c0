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
	"errors"
	"strconv"

	"github.com/tomoncle/itemsvc/types"
)

const (
	MsgFieldsRequired = "Both name and description are required"
	MsgInvalidID      = "Invalid item id"
	MsgNotFound       = "Item not found"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New(MsgNotFound)

// ValidationError is a client input problem. Message is safe to return to
// the caller as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateInput requires both fields to be present and non-empty.
func ValidateInput(in types.ItemInput) error {
	if in.Name == "" || in.Description == "" {
		return &ValidationError{Message: MsgFieldsRequired}
	}
	return nil
}

// ParseID accepts a positive base-10 integer without sign.
func ParseID(raw string) (int64, error) {
	if raw == "" || raw[0] < '0' || raw[0] > '9' {
		return 0, &ValidationError{Message: MsgInvalidID}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Message: MsgInvalidID}
	}
	return id, nil
}
