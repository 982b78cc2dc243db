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

package internal

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommand(t *testing.T) {
	Convey("commands should be named by the word after the program name", t, func() {
		So(CmdRecompute.Name(), ShouldEqual, "recompute")
		So(CmdAsOf.Name(), ShouldEqual, "asof")
		So(CmdVersion.Name(), ShouldEqual, "version")
		So(CmdStats.Runnable(), ShouldBeTrue)
		So((&Command{UsageLine: "trustindex nothing"}).Runnable(), ShouldBeFalse)
	})
	Convey("the height flag should be optional", t, func() {
		So(CmdSnapshot.Flag.Parse([]string{"-height", "42"}), ShouldBeNil)
		So(*heightArg(), ShouldEqual, 42)
		So(CmdSnapshot.Flag.Parse([]string{"-height", "-1"}), ShouldBeNil)
		So(heightArg(), ShouldBeNil)
	})
	Convey("the exit status should only increase", t, func() {
		SetExitStatus(1)
		SetExitStatus(0)
		So(ExitStatus(), ShouldEqual, 1)
		exitStatus = 0
	})
	Convey("the version line should name the program", t, func() {
		So(PrintVersion(false), ShouldStartWith, "trustindex unknown")
	})
}
