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

package snapshot_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/metric"
	"github.com/CovenantSQL/trustindex/snapshot"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/test"
	"github.com/CovenantSQL/trustindex/types"
)

type countingComposer struct {
	calls int32
}

func (c *countingComposer) ComputeGlobalMetrics(ctx context.Context, height *int64) (*types.GlobalMetrics, error) {
	n := atomic.AddInt32(&c.calls, 1)
	return &types.GlobalMetrics{
		Aggregate: types.Aggregate{
			Weight:       types.NewAmount(100),
			Participants: int64(n),
		},
		ActiveSchemas: 2,
	}, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func TestRunOnce(t *testing.T) {
	Convey("given a scheduler over an empty store", t, func() {
		ctx := context.Background()
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		clock := &fakeClock{t: test.BlockTime(100)}
		composer := &countingComposer{}
		locker := snapshot.NewLocalLocker()
		s := snapshot.NewScheduler(conf.SnapshotConfig{MinStaleness: time.Minute}, st, composer, locker)
		s.SetClock(clock.now)

		_, err = s.Latest(ctx, nil)
		So(errors.Cause(err), ShouldEqual, snapshot.ErrNoSnapshot)

		first, created, err := s.RunOnce(ctx, nil)
		So(err, ShouldBeNil)
		So(created, ShouldBeTrue)
		So(first.RunID, ShouldNotBeEmpty)
		So(first.BlockHeight, ShouldBeNil)

		Convey("the persisted row should carry the payload", func() {
			latest, err := s.Latest(ctx, nil)
			So(err, ShouldBeNil)
			So(latest.ID, ShouldEqual, first.ID)
			So(latest.RunID, ShouldEqual, first.RunID)
			So(latest.ActiveSchemas, ShouldEqual, 2)
			So(latest.Weight.String(), ShouldEqual, "100")

			m, err := latest.DecodePayload()
			So(err, ShouldBeNil)
			So(m.Participants, ShouldEqual, 1)
			So(m.ActiveSchemas, ShouldEqual, 2)

			last, _ := metric.Index.Last()
			So(last, ShouldNotBeNil)
			So(last.Participants, ShouldEqual, 1)
		})

		Convey("a fresh snapshot should be reused", func() {
			clock.t = clock.t.Add(30 * time.Second)
			snap, created, err := s.RunOnce(ctx, nil)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(snap.ID, ShouldEqual, first.ID)
			So(atomic.LoadInt32(&composer.calls), ShouldEqual, 1)
		})

		Convey("a stale snapshot should be replaced", func() {
			clock.t = clock.t.Add(2 * time.Minute)
			snap, created, err := s.RunOnce(ctx, nil)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(snap.ID, ShouldNotEqual, first.ID)

			latest, err := s.Latest(ctx, nil)
			So(err, ShouldBeNil)
			So(latest.ID, ShouldEqual, snap.ID)
		})

		Convey("scopes should not share staleness", func() {
			snap, created, err := s.RunOnce(ctx, test.Int64(10))
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(*snap.BlockHeight, ShouldEqual, 10)

			latest, err := s.Latest(ctx, test.Int64(10))
			So(err, ShouldBeNil)
			So(latest.ID, ShouldEqual, snap.ID)
			_, err = s.Latest(ctx, test.Int64(11))
			So(errors.Cause(err), ShouldEqual, snapshot.ErrNoSnapshot)
		})

		Convey("a held lock should skip the run", func() {
			release, ok, err := locker.TryLock(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			defer release()

			clock.t = clock.t.Add(time.Hour)
			snap, created, err := s.RunOnce(ctx, nil)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(snap, ShouldBeNil)

			snap, err = s.GetOrCompute(ctx, nil)
			So(err, ShouldBeNil)
			So(snap.ID, ShouldEqual, first.ID)

			snap, err = s.GetOrCompute(ctx, test.Int64(20))
			So(err, ShouldBeNil)
			So(snap.ID, ShouldEqual, 0)
			So(*snap.BlockHeight, ShouldEqual, 20)
			So(atomic.LoadInt32(&composer.calls), ShouldEqual, 2)
		})
	})
}

func TestGetOrComputeWithComposer(t *testing.T) {
	Convey("snapshots should be computed from the stats composer", t, func() {
		ctx := context.Background()
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		b := test.NewBuilder(st)
		_, err = b.Registry(1, "gov")
		So(err, ShouldBeNil)
		_, err = b.Schema(7, 1, types.ModeOpen, types.ModeOpen)
		So(err, ShouldBeNil)
		b.At(10)
		_, err = b.Permission(1, 7, types.PermissionEcosystem, nil, "eco", "1000")
		So(err, ShouldBeNil)

		composer := stats.NewComposer(st)
		composer.SetClock(func() time.Time { return test.BlockTime(100) })
		s := snapshot.NewScheduler(conf.SnapshotConfig{MinStaleness: time.Minute}, st, composer, nil)

		snap, err := s.GetOrCompute(ctx, nil)
		So(err, ShouldBeNil)
		So(snap.ID, ShouldBeGreaterThan, 0)
		So(snap.ActiveTrustRegistries, ShouldEqual, 1)
		So(snap.ActiveSchemas, ShouldEqual, 1)
		So(snap.Participants, ShouldEqual, 1)
		So(snap.Weight.String(), ShouldEqual, "1000")

		again, err := s.GetOrCompute(ctx, nil)
		So(err, ShouldBeNil)
		So(again.ID, ShouldEqual, snap.ID)
	})
}

func TestSchedulerLoop(t *testing.T) {
	Convey("the worker should persist snapshots until stopped", t, func() {
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		defer leaktest.CheckTimeout(t, 5*time.Second)()

		composer := &countingComposer{}
		s := snapshot.NewScheduler(conf.SnapshotConfig{Interval: time.Hour}, st, composer, nil)
		So(s.Start(), ShouldBeNil)
		s.Trigger()

		deadline := time.Now().Add(5 * time.Second)
		for atomic.LoadInt32(&composer.calls) == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		So(atomic.LoadInt32(&composer.calls), ShouldBeGreaterThan, 0)

		So(s.Stop(), ShouldBeNil)
		So(s.Stop(), ShouldEqual, snapshot.ErrStopped)
		So(s.Start(), ShouldEqual, snapshot.ErrStopped)

		_, err = s.Latest(context.Background(), nil)
		So(err, ShouldBeNil)
	})
}
