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
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestProfiler(t *testing.T) {
	Convey("profiles should be written on stop", t, func() {
		dir := t.TempDir()
		cpuProfile := filepath.Join(dir, "cpu.pprof")
		memProfile := filepath.Join(dir, "mem.pprof")

		p, err := StartProfile(cpuProfile, memProfile)
		So(err, ShouldBeNil)
		p.Stop()
		p.Stop()

		cpuFileInfo, err := os.Stat(cpuProfile)
		So(err, ShouldBeNil)
		So(cpuFileInfo.Size(), ShouldBeGreaterThan, 0)
		memFileInfo, err := os.Stat(memProfile)
		So(err, ShouldBeNil)
		So(memFileInfo.Size(), ShouldBeGreaterThan, 0)
	})

	Convey("empty paths should be skipped", t, func() {
		p, err := StartProfile("", "")
		So(err, ShouldBeNil)
		p.Stop()
	})

	Convey("unwritable paths should fail", t, func() {
		_, err := StartProfile("/not/exist/path", "")
		So(err, ShouldNotBeNil)
		_, err = StartProfile("", "/not/exist/path")
		So(err, ShouldNotBeNil)

		var p *Profiler
		p.Stop()
	})
}
