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

package utils

import (
	"os"
	"os/user"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHomeDirExpand(t *testing.T) {
	Convey("expand ~ dir", t, func() {
		usr, err := user.Current()
		So(err, ShouldBeNil)

		So(HomeDirExpand("~"), ShouldEqual, usr.HomeDir)
		So(HomeDirExpand("~/.trustindex/config.yaml"), ShouldEqual, usr.HomeDir+"/.trustindex/config.yaml")
		So(HomeDirExpand("/dev/null"), ShouldEqual, "/dev/null")
		So(HomeDirExpand(""), ShouldEqual, "")
	})

	Convey("expand environment variables", t, func() {
		So(os.Setenv("TRUSTINDEX_TEST_DIR", "/var/lib/trustindex"), ShouldBeNil)
		defer os.Unsetenv("TRUSTINDEX_TEST_DIR")
		So(HomeDirExpand("$TRUSTINDEX_TEST_DIR/index.db"), ShouldEqual, "/var/lib/trustindex/index.db")
	})
}

func TestExist(t *testing.T) {
	Convey("path exist or not", t, func() {
		So(Exist("/tmp/anemptypathshouldnotexist"), ShouldBeFalse)
		So(Exist("/"), ShouldBeTrue)
	})
}
