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

package conf

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

const testConfig = `
TrustIndex:
  LogLevel: debug
  Database:
    URL: "sqlite3:/tmp/trustindex.db"
    QueryTimeout: 5s
  Snapshot:
    Interval: 10s
  Aggregate:
    BatchSize: 20
    GCBetweenBatches: false
  Redis:
    Addr: "127.0.0.1:6379"
  API:
    ListenAddr: "127.0.0.1:4665"
`

func TestLoadConfig(t *testing.T) {
	Convey("load config from file", t, func() {
		dir, err := ioutil.TempDir("", "trustindex-conf")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "config.yaml")
		So(ioutil.WriteFile(path, []byte(testConfig), 0600), ShouldBeNil)

		cfg, err := LoadConfig(path)
		So(err, ShouldBeNil)
		So(cfg.LogLevel, ShouldEqual, "debug")
		So(cfg.Database.URL, ShouldEqual, "sqlite3:/tmp/trustindex.db")
		So(cfg.Database.QueryTimeout, ShouldEqual, 5*time.Second)
		So(cfg.Snapshot.Interval, ShouldEqual, 10*time.Second)
		So(cfg.Snapshot.MinStaleness, ShouldEqual, DefaultMinStaleness)
		So(cfg.Snapshot.LockKey, ShouldEqual, DefaultLockKey)
		So(cfg.Aggregate.BatchSize, ShouldEqual, 20)
		So(cfg.Aggregate.Workers, ShouldEqual, DefaultWorkers)
		So(cfg.Aggregate.GCEnabled(), ShouldBeFalse)
		So(cfg.Redis.Enabled(), ShouldBeTrue)
		So(cfg.API.ListenAddr, ShouldEqual, "127.0.0.1:4665")

		_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
	Convey("invalid config should be rejected", t, func() {
		_, err := ParseConfig([]byte("Other: {}"))
		So(errors.Cause(err), ShouldEqual, ErrInvalidConfig)

		_, err = ParseConfig([]byte("TrustIndex:\n  LogLevel: info\n"))
		So(errors.Cause(err), ShouldEqual, ErrInvalidConfig)

		_, err = ParseConfig([]byte("TrustIndex:\n  Database:\n    URL: x\n    MaxOpenConns: -1\n"))
		So(errors.Cause(err), ShouldEqual, ErrInvalidConfig)

		_, err = ParseConfig([]byte("TrustIndex: ["))
		So(errors.Cause(err), ShouldEqual, ErrInvalidConfig)
	})
	Convey("defaults should be complete", t, func() {
		cfg := DefaultConfig("sqlite3::memory:")
		So(cfg.Snapshot.Interval, ShouldEqual, time.Minute)
		So(cfg.Snapshot.MinStaleness, ShouldEqual, 30*time.Second)
		So(cfg.Aggregate.BatchSize, ShouldEqual, 50)
		So(cfg.Aggregate.GCEnabled(), ShouldBeTrue)
		So(cfg.Redis.Enabled(), ShouldBeFalse)
	})
}
