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
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/types"
)

// HistoryRow is a row of a history table.
type HistoryRow interface {
	Record() *types.HistoryRecord
}

var (
	historyRecordType = reflect.TypeOf(types.HistoryRecord{})
	timeType          = reflect.TypeOf(time.Time{})
)

// AppendHistory inserts a history row, filling its changes with every column that differs
// from the previous row of the same key. History rows are never updated nor deleted.
func (e *Engine) AppendHistory(ctx context.Context, t *EntityTable, row HistoryRow) (err error) {
	rv := reflect.ValueOf(row)
	if rv.Kind() != reflect.Ptr || rv.Type() != reflect.TypeOf(t.newHistory()) {
		return errors.Wrapf(ErrInvalidRow, "%T is not a %s history row", row, t.Name)
	}

	cur := columnValues(rv.Elem())
	key, ok := cur[t.HistoryKey]
	if !ok {
		return errors.Wrapf(ErrInvalidRow, "%T has no %s column", row, t.HistoryKey)
	}

	rec := row.Record()
	prev := t.newHistory()
	height := rec.Height
	err = e.GetAsOf(ctx, t, rawKey(rv.Elem(), t.HistoryKey), &height, prev)
	switch {
	case err == nil:
		rec.Changes = diff(columnValues(reflect.ValueOf(prev).Elem()), cur, t.HistoryKey)
	case IsNotFound(err):
		rec.Changes = diff(nil, cur, t.HistoryKey)
	default:
		return
	}

	if err = e.q.Insert(ctx, row); err != nil {
		err = errors.Wrapf(err, "append %s history of %v", t.Name, key)
	}
	return
}

func diff(prev, cur map[string]interface{}, key string) types.FieldChanges {
	changes := types.FieldChanges{}
	for col, v := range cur {
		if col == key {
			continue
		}
		var old interface{}
		if prev != nil {
			old = prev[col]
		} else if isEmpty(v) {
			continue
		}
		if !reflect.DeepEqual(old, v) {
			changes[col] = types.FieldChange{Old: old, New: v}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return x == "" || x == "0"
	case int64:
		return x == 0
	}
	return false
}

// columnValues flattens the db columns of a row, skipping history metadata.
func columnValues(v reflect.Value) map[string]interface{} {
	m := make(map[string]interface{})
	walkColumns(v, func(col string, fv reflect.Value) {
		m[col] = normalize(fv)
	})
	return m
}

func rawKey(v reflect.Value, key string) (out interface{}) {
	walkColumns(v, func(col string, fv reflect.Value) {
		if col == key {
			out = fv.Interface()
		}
	})
	return
}

func walkColumns(v reflect.Value, fn func(col string, fv reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if f.Type != historyRecordType {
				walkColumns(v.Field(i), fn)
			}
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		col := strings.Split(f.Tag.Get("db"), ",")[0]
		if col == "" || col == "-" {
			continue
		}
		fn(col, v.Field(i))
	}
}

func normalize(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}
	}
	return v.Interface()
}
