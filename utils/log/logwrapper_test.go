/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStandardLogger(t *testing.T) {
	Convey("standard logger should honor level and caller hook", t, func() {
		var buf bytes.Buffer
		orig := logrus.StandardLogger().Out
		SetOutput(&buf)
		defer SetOutput(orig)
		SetFormatter(&logrus.TextFormatter{DisableColors: true})

		SetStringLevel("debug", InfoLevel)
		So(GetLevel(), ShouldEqual, DebugLevel)
		SetStringLevel("not-a-level", InfoLevel)
		So(GetLevel(), ShouldEqual, InfoLevel)

		Debug("hidden")
		So(buf.String(), ShouldNotContainSubstring, "hidden")

		WithFields(Fields{"permission": 1}).WithError(errors.New("boom")).Warning("skip entity")
		So(buf.String(), ShouldContainSubstring, "skip entity")
		So(buf.String(), ShouldContainSubstring, "permission=1")
		So(buf.String(), ShouldContainSubstring, "boom")
		So(buf.String(), ShouldContainSubstring, "caller=")

		buf.Reset()
		Infof("recomputed %d schemas", 3)
		So(buf.String(), ShouldContainSubstring, "recomputed 3 schemas")

		n := NilFormatter{}
		a, b := n.Format(&logrus.Entry{})
		So(a, ShouldBeNil)
		So(b, ShouldBeNil)
	})
}
