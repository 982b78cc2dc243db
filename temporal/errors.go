/*
 * Copyright 2018 The CovenantSQL Authors.
 *
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

package temporal

import (
	"database/sql"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound defines an entity absent from the current table, or not yet existing at a height.
	ErrNotFound = errors.New("entity not found")
	// ErrUnknownEntity defines an entity table name not in the registry.
	ErrUnknownEntity = errors.New("unknown entity table")
	// ErrInvalidKey defines a key not matching the entity key type.
	ErrInvalidKey = errors.New("invalid entity key")
	// ErrInvalidRow defines a row type not matching the entity history table.
	ErrInvalidRow = errors.New("invalid history row")
)

// IsNotFound returns if err is caused by a missing entity.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrNotFound || cause == sql.ErrNoRows
}
