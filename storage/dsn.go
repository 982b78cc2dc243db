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

package storage

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DSN represents a sqlite connection string.
type DSN struct {
	filename string
	params   map[string]string
}

// NewDSN parses the given string and returns a DSN.
func NewDSN(s string) (*DSN, error) {
	parts := strings.SplitN(s, "?", 2)

	dsn := &DSN{
		filename: strings.TrimPrefix(parts[0], "file:"),
		params:   make(map[string]string),
	}

	if len(parts) < 2 || parts[1] == "" {
		return dsn, nil
	}

	for _, v := range strings.Split(parts[1], "&") {
		param := strings.SplitN(v, "=", 2)

		if len(param) != 2 {
			return nil, errors.Wrapf(ErrInvalidDSN, "unrecognized parameter: %s", v)
		}

		dsn.params[param[0]] = param[1]
	}

	return dsn, nil
}

// Format formats DSN to a connection string, parameters are sorted by key.
func (dsn *DSN) Format() string {
	if len(dsn.params) == 0 {
		return "file:" + dsn.filename
	}

	keys := make([]string, 0, len(dsn.params))
	for k := range dsn.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, k+"="+dsn.params[k])
	}

	return "file:" + dsn.filename + "?" + strings.Join(params, "&")
}

// FileName gets the sqlite database file name of DSN.
func (dsn *DSN) FileName() string { return dsn.filename }

// IsMemory returns if the DSN points to an in-memory database.
func (dsn *DSN) IsMemory() bool {
	return dsn.filename == ":memory:" || dsn.params["mode"] == "memory"
}

// AddParam adds key:value pair DSN parameters, an empty value removes the key.
func (dsn *DSN) AddParam(key, value string) {
	if dsn.params == nil {
		dsn.params = make(map[string]string)
	}

	if value == "" {
		delete(dsn.params, key)
	} else {
		dsn.params[key] = value
	}
}

// SetDefaultParam adds the parameter only if the key is absent.
func (dsn *DSN) SetDefaultParam(key, value string) {
	if _, ok := dsn.params[key]; !ok {
		dsn.AddParam(key, value)
	}
}

// GetParam gets the value.
func (dsn *DSN) GetParam(key string) (value string, ok bool) {
	value, ok = dsn.params[key]
	return
}
