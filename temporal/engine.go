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

// Package temporal implements point-in-time reads over paired current and history tables.
//
// Without a height a read goes to the current table. With a height H it goes to the
// history table and returns, per key, the newest row with height <= H, ordered by
// (height, created_at, id). A key without such a row did not exist at H and is reported
// as ErrNotFound. There is no caching, every call is a fresh read.
package temporal

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/storage"
)

const (
	historyOrder = "height DESC, created_at DESC, id DESC"
	keyChunkSize = 500
)

type filter struct {
	column string
	value  interface{}
}

type options struct {
	filters []filter
	columns []string
	keys    []interface{}
	keysSet bool
}

// Option customizes a temporal read.
type Option func(o *options)

// WithFilter adds an equality filter on a column.
func WithFilter(column string, value interface{}) Option {
	return func(o *options) {
		o.filters = append(o.filters, filter{column: column, value: value})
	}
}

// WithColumns projects the read to the given columns.
func WithColumns(cols ...string) Option {
	return func(o *options) {
		o.columns = append(o.columns, cols...)
	}
}

// WithKeys restricts a multi-row read to the given entity keys.
func WithKeys(keys ...interface{}) Option {
	return func(o *options) {
		o.keys = append(o.keys, keys...)
		o.keysSet = true
	}
}

// WithIntKeys restricts a multi-row read to the given integer entity keys.
func WithIntKeys(keys []int64) Option {
	return WithKeys(storage.Int64Args(keys)...)
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) where(alias string) (clause string, args []interface{}) {
	if len(o.filters) == 0 {
		return
	}
	conds := make([]string, 0, len(o.filters))
	for _, f := range o.filters {
		col := f.column
		if alias != "" {
			col = alias + "." + col
		}
		conds = append(conds, col+" = ?")
		args = append(args, f.value)
	}
	clause = " AND " + strings.Join(conds, " AND ")
	return
}

// Engine runs temporal reads on a store or inside a transaction.
type Engine struct {
	q storage.Querier
}

// NewEngine returns a temporal engine bound to q.
func NewEngine(q storage.Querier) *Engine {
	return &Engine{q: q}
}

// Querier returns the underlying querier.
func (e *Engine) Querier() storage.Querier {
	return e.q
}

func (e *Engine) columns(dest interface{}, o *options) ([]string, error) {
	if len(o.columns) > 0 {
		return o.columns, nil
	}
	return e.q.Columns(dest)
}

// GetAsOf reads one entity by key into dest.
//
// With a nil height dest must be a current row of the table and the current table is read.
// Otherwise dest must be a history row and the newest history row with height <= *height is read.
func (e *Engine) GetAsOf(
	ctx context.Context, t *EntityTable, key interface{}, height *int64, dest interface{}, opts ...Option,
) (err error) {
	o := buildOptions(opts)
	var cols []string
	if cols, err = e.columns(dest, o); err != nil {
		return
	}

	var (
		query string
		args  []interface{}
	)
	where, fargs := o.where("")
	if height == nil {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?%s LIMIT 1",
			storage.ColumnList("", cols), t.Current, t.Key, where)
		args = append([]interface{}{key}, fargs...)
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND height <= ?%s ORDER BY %s LIMIT 1",
			storage.ColumnList("", cols), t.History, t.HistoryKey, where, historyOrder)
		args = append([]interface{}{key, *height}, fargs...)
	}

	if err = e.q.SelectOne(ctx, dest, query, args...); err != nil {
		if IsNotFound(err) {
			err = errors.Wrapf(ErrNotFound, "%s %v", t.Name, key)
		} else {
			err = errors.Wrapf(err, "get %s %v", t.Name, key)
		}
	}
	return
}

// LatestPerKey reads every entity matching the options into dest, a pointer to a slice.
//
// With a nil height the current table is read. Otherwise only the newest history row
// per key with height <= *height is kept, ranked by key before filters are applied, so
// a filter never resurrects an older snapshot of an entity.
func (e *Engine) LatestPerKey(
	ctx context.Context, t *EntityTable, height *int64, dest interface{}, opts ...Option,
) (err error) {
	o := buildOptions(opts)
	var cols []string
	if cols, err = e.columns(dest, o); err != nil {
		return
	}

	if o.keysSet && len(o.keys) == 0 {
		return
	}
	if len(o.keys) <= keyChunkSize {
		return e.latestPerKey(ctx, t, height, dest, cols, o, o.keys)
	}

	// split large key sets and append every chunk to dest
	out := reflect.ValueOf(dest).Elem()
	for start := 0; start < len(o.keys); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(o.keys) {
			end = len(o.keys)
		}
		part := reflect.New(out.Type())
		if err = e.latestPerKey(ctx, t, height, part.Interface(), cols, o, o.keys[start:end]); err != nil {
			return
		}
		out.Set(reflect.AppendSlice(out, part.Elem()))
	}
	return
}

func (e *Engine) latestPerKey(
	ctx context.Context, t *EntityTable, height *int64, dest interface{},
	cols []string, o *options, keys []interface{},
) (err error) {
	var (
		query string
		args  []interface{}
	)
	where, fargs := o.where("")

	if height == nil {
		var keyCond string
		if len(keys) > 0 {
			keyCond = fmt.Sprintf(" AND %s IN (%s)", t.Key, storage.In(len(keys)))
			args = append(args, keys...)
		}
		query = fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 1%s%s ORDER BY %s",
			storage.ColumnList("", cols), t.Current, keyCond, where, t.Key)
		args = append(args, fargs...)
	} else {
		args = append(args, *height)
		var keyCond string
		if len(keys) > 0 {
			keyCond = fmt.Sprintf(" AND %s IN (%s)", t.HistoryKey, storage.In(len(keys)))
			args = append(args, keys...)
		}
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE id IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS rn
		FROM %s WHERE height <= ?%s
	) ranked WHERE rn = 1
)%s ORDER BY %s`,
			storage.ColumnList("", cols), t.History,
			t.HistoryKey, historyOrder,
			t.History, keyCond,
			where, t.HistoryKey)
		args = append(args, fargs...)
	}

	if err = e.q.Select(ctx, dest, query, args...); err != nil {
		err = errors.Wrapf(err, "latest %s rows", t.Name)
	}
	return
}

type createdAtRow struct {
	CreatedAt time.Time `db:"created_at"`
}

// LatestEventTime returns the created_at of the newest history row with height <= height.
// The boolean is false if the table has no such row.
func (e *Engine) LatestEventTime(ctx context.Context, t *EntityTable, height int64) (at time.Time, ok bool, err error) {
	var row createdAtRow
	err = e.q.SelectOne(ctx, &row,
		fmt.Sprintf("SELECT created_at FROM %s WHERE height <= ? ORDER BY %s LIMIT 1", t.History, historyOrder),
		height)
	if err != nil {
		if IsNotFound(err) {
			err = nil
		}
		return
	}
	return row.CreatedAt, true, nil
}
