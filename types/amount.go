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

package types

import (
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Amount is an arbitrary-precision monetary amount, stored as a decimal string.
type Amount struct {
	d decimal.Decimal
}

// ZeroAmount is the zero amount.
var ZeroAmount = Amount{}

// NewAmount returns an amount from an int64 value.
func NewAmount(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// ParseAmount parses a decimal string, an empty string is zero.
func ParseAmount(s string) (a Amount, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	var d decimal.Decimal
	if d, err = decimal.NewFromString(s); err != nil {
		err = errors.Wrapf(ErrInvalidAmount, "parse %q", s)
		return
	}

	a.d = d
	return
}

// MustParseAmount parses s or panics, used for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Cmp compares a and b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal returns if a equals b numerically.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// IsZero returns if amount is zero.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// IsPositive returns if amount is strictly positive.
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// String returns the canonical decimal string.
func (a Amount) String() string {
	return a.d.String()
}

// Float64 returns the nearest float64, only meant for gauges.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(b []byte) (err error) {
	*a, err = ParseAmount(string(b))
	return
}

// MarshalBinary implements encoding.BinaryMarshaler for msgpack payloads.
func (a Amount) MarshalBinary() ([]byte, error) {
	return a.MarshalText()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Amount) UnmarshalBinary(b []byte) error {
	return a.UnmarshalText(b)
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) (err error) {
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount
	case string:
		*a, err = ParseAmount(v)
	case []byte:
		*a, err = ParseAmount(string(v))
	case int64:
		*a = NewAmount(v)
	case float64:
		*a = Amount{d: decimal.NewFromFloat(v)}
	default:
		err = errors.Wrapf(ErrInvalidAmount, "unsupported source type %T", src)
	}
	return
}

// SumAmounts parses and sums decimal strings, failing on the first malformed value.
func SumAmounts(values ...string) (sum Amount, err error) {
	for _, v := range values {
		var a Amount
		if a, err = ParseAmount(v); err != nil {
			return
		}
		sum = sum.Add(a)
	}
	return
}
