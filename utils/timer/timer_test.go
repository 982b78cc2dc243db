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

package timer

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestTimer(t *testing.T) {
	Convey("stage durations should be measured between marks", t, func() {
		c := &fakeClock{t: time.Unix(1600000000, 0)}
		tm := newTimerWithClock(c.now)
		So(tm.ToMap(), ShouldBeEmpty)

		c.advance(100 * time.Millisecond)
		tm.Add("load")
		c.advance(time.Second)
		tm.Add("compute")
		c.advance(200 * time.Millisecond)
		tm.Add("load")

		m := tm.ToMap()
		So(m, ShouldHaveLength, 3)
		So(m["load"], ShouldEqual, 300*time.Millisecond)
		So(m["compute"], ShouldEqual, time.Second)
		So(m["total"], ShouldEqual, 1300*time.Millisecond)

		c.advance(time.Second)
		So(tm.Total(), ShouldEqual, 2300*time.Millisecond)

		f := tm.ToLogFields()
		So(f, ShouldHaveLength, 3)
		So(f["compute"], ShouldEqual, time.Second)
	})
}
