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
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAmount(t *testing.T) {
	Convey("amounts should parse decimal strings", t, func() {
		a, err := ParseAmount("")
		So(err, ShouldBeNil)
		So(a.IsZero(), ShouldBeTrue)
		So(a.String(), ShouldEqual, "0")
		So(ZeroAmount.String(), ShouldEqual, "0")

		a, err = ParseAmount(" 123456789012345678901234567890 ")
		So(err, ShouldBeNil)
		So(a.Add(NewAmount(10)).String(), ShouldEqual, "123456789012345678901234567900")
		So(a.IsPositive(), ShouldBeTrue)

		_, err = ParseAmount("12abc")
		So(errors.Cause(err), ShouldEqual, ErrInvalidAmount)
		So(err.Error(), ShouldContainSubstring, "12abc")
		So(func() { MustParseAmount("x") }, ShouldPanic)

		So(NewAmount(5).Sub(NewAmount(7)).String(), ShouldEqual, "-2")
		So(NewAmount(5).Cmp(NewAmount(7)), ShouldEqual, -1)
		So(MustParseAmount("1.50").Equal(MustParseAmount("1.5")), ShouldBeTrue)
	})
	Convey("amounts should sum and fail on malformed values", t, func() {
		s, err := SumAmounts("100", "", "250")
		So(err, ShouldBeNil)
		So(s.String(), ShouldEqual, "350")

		_, err = SumAmounts("100", "NaN?")
		So(errors.Cause(err), ShouldEqual, ErrInvalidAmount)
	})
	Convey("amounts should scan and encode", t, func() {
		var a Amount
		So(a.Scan("42"), ShouldBeNil)
		So(a.String(), ShouldEqual, "42")
		So(a.Scan([]byte("43")), ShouldBeNil)
		So(a.String(), ShouldEqual, "43")
		So(a.Scan(int64(44)), ShouldBeNil)
		So(a.String(), ShouldEqual, "44")
		So(a.Scan(nil), ShouldBeNil)
		So(a.IsZero(), ShouldBeTrue)
		So(errors.Cause(a.Scan(true)), ShouldEqual, ErrInvalidAmount)
		So(errors.Cause(a.Scan("bad")), ShouldEqual, ErrInvalidAmount)

		v, err := NewAmount(7).Value()
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "7")

		b, err := NewAmount(9).MarshalText()
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "9")
		So(a.UnmarshalText([]byte("11")), ShouldBeNil)
		So(a.String(), ShouldEqual, "11")
	})
}
