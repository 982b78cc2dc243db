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

package aggregate_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/permission"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/test"
	"github.com/CovenantSQL/trustindex/types"
)

type countingRollup struct {
	calls int32
}

func (r *countingRollup) RefreshRollups(ctx context.Context) error {
	atomic.AddInt32(&r.calls, 1)
	return nil
}

func clock() time.Time {
	return test.BlockTime(100)
}

func loadPermission(st *storage.Store, id int64) *types.Permission {
	var p types.Permission
	err := temporal.NewEngine(st).GetAsOf(context.Background(),
		temporal.MustLookup(temporal.EntityPermission), id, nil, &p)
	So(err, ShouldBeNil)
	return &p
}

func snapshotAggregates(st *storage.Store, ids ...int64) string {
	out := make(map[int64]types.Aggregate)
	for _, id := range ids {
		out[id] = loadPermission(st, id).Aggregate
	}
	b, err := json.Marshal(out)
	So(err, ShouldBeNil)
	return string(b)
}

func TestRecomputeEndToEnd(t *testing.T) {
	Convey("root weight should include its child", t, func() {
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		b := test.NewBuilder(st)
		_, err = b.Registry(1, "gov")
		So(err, ShouldBeNil)
		_, err = b.Schema(7, 1, types.ModeEcosystem, types.ModeEcosystem)
		So(err, ShouldBeNil)
		_, err = b.Permission(1, 7, types.PermissionEcosystem, nil, "eco", "1000")
		So(err, ShouldBeNil)
		_, err = b.Permission(2, 7, types.PermissionIssuer, test.Int64(1), "issuer", "200")
		So(err, ShouldBeNil)

		a := aggregate.NewAggregator(st, conf.AggregateConfig{})
		summary, err := a.RecomputeAll(context.Background())
		So(err, ShouldBeNil)
		So(summary.Schemas, ShouldEqual, 1)
		So(summary.Permissions, ShouldEqual, 2)
		So(summary.Failed, ShouldBeEmpty)
		So(summary.RunID, ShouldNotBeEmpty)

		So(loadPermission(st, 1).Weight.String(), ShouldEqual, "1200")
		So(loadPermission(st, 2).Weight.String(), ShouldEqual, "200")
	})
}

func TestAggregator(t *testing.T) {
	Convey("given a schema with a deep permission tree", t, func() {
		ctx := context.Background()
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		b := test.NewBuilder(st)
		_, err = b.Registry(1, "gov")
		So(err, ShouldBeNil)
		_, err = b.Schema(7, 1, types.ModeGrantorValidation, types.ModeOpen)
		So(err, ShouldBeNil)
		_, err = b.Schema(8, 1, types.ModeOpen, types.ModeOpen)
		So(err, ShouldBeNil)

		b.At(10)
		p1, err := b.Permission(1, 7, types.PermissionEcosystem, nil, "eco", "1000")
		So(err, ShouldBeNil)
		p2, err := b.Permission(2, 7, types.PermissionIssuer, test.Int64(1), "issuer", "200")
		So(err, ShouldBeNil)
		_, err = b.Permission(3, 7, types.PermissionIssuerGrantor, test.Int64(1), "grantor", "50")
		So(err, ShouldBeNil)
		p4, err := b.Permission(4, 7, types.PermissionIssuer, test.Int64(3), "issuer2", "25")
		So(err, ShouldBeNil)
		p5, err := b.Permission(5, 7, types.PermissionHolder, test.Int64(4), "holder", "5")
		So(err, ShouldBeNil)
		_, err = b.Permission(6, 7, types.PermissionVerifier, test.Int64(99), "verifier", "10")
		So(err, ShouldBeNil)
		_, err = b.Permission(7, 8, types.PermissionEcosystem, nil, "broken", "12x")
		So(err, ShouldBeNil)

		_, err = b.Session("s1", 2, test.Issue(2))
		So(err, ShouldBeNil)
		_, err = b.Session("s2", 3, test.Issue(4), test.Verify(6))
		So(err, ShouldBeNil)

		b.At(50)
		So(b.Revoke(p4, "grantor"), ShouldBeNil)
		b.At(60)
		So(b.Slash(p2, 50, "gov"), ShouldBeNil)

		rollup := &countingRollup{}
		a := aggregate.NewAggregator(st, conf.AggregateConfig{BatchSize: 2, Workers: 2})
		a.SetClock(clock)
		a.SetRollup(rollup)

		summary, err := a.RecomputeAll(ctx)
		So(err, ShouldBeNil)

		Convey("a malformed schema should not stop the others", func() {
			So(summary.Schemas, ShouldEqual, 1)
			So(summary.Permissions, ShouldEqual, 6)
			So(summary.Failed, ShouldResemble, []int64{8})
			So(atomic.LoadInt32(&rollup.calls), ShouldEqual, 1)
			So(loadPermission(st, 7).Weight.IsZero(), ShouldBeTrue)
		})

		Convey("weights and participants should be subtree sums", func() {
			So(loadPermission(st, 1).Weight.String(), ShouldEqual, "1280")
			So(loadPermission(st, 3).Weight.String(), ShouldEqual, "80")
			So(loadPermission(st, 4).Weight.String(), ShouldEqual, "30")
			So(loadPermission(st, 6).Weight.String(), ShouldEqual, "10")

			So(loadPermission(st, 1).Participants, ShouldEqual, 3)
			So(loadPermission(st, 2).Participants, ShouldEqual, 0)
			So(loadPermission(st, 3).Participants, ShouldEqual, 2)
			So(loadPermission(st, 4).Participants, ShouldEqual, 1)
			So(loadPermission(st, 6).Participants, ShouldEqual, 1)

			var active int64
			for id := int64(1); id <= 6; id++ {
				if permission.IsActive(&loadPermission(st, id).PermissionFields, clock()) {
					active++
				}
			}
			So(loadPermission(st, 1).Participants+loadPermission(st, 6).Participants, ShouldEqual, active)
		})

		Convey("issuance should be counted over the validator chain", func() {
			So(loadPermission(st, 2).Issued, ShouldEqual, 1)
			So(loadPermission(st, 5).Issued, ShouldEqual, 1)
			So(loadPermission(st, 3).Issued, ShouldEqual, 0)
			So(loadPermission(st, 1).Issued, ShouldEqual, 0)
			So(loadPermission(st, 6).Verified, ShouldEqual, 1)
		})

		Convey("slash stats should follow the validator chain", func() {
			p := loadPermission(st, 2)
			So(p.EcosystemSlashEvents, ShouldEqual, 1)
			So(p.EcosystemSlashedAmount.String(), ShouldEqual, "50")
			So(loadPermission(st, 1).EcosystemSlashEvents, ShouldEqual, 0)
		})

		Convey("recomputation should be idempotent", func() {
			before := snapshotAggregates(st, 1, 2, 3, 4, 5, 6)
			_, err := a.RecomputeAll(ctx)
			So(err, ShouldBeNil)
			So(snapshotAggregates(st, 1, 2, 3, 4, 5, 6), ShouldEqual, before)

			n, err := a.RecomputeSchema(ctx, 7)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 6)
			So(snapshotAggregates(st, 1, 2, 3, 4, 5, 6), ShouldEqual, before)
		})

		Convey("refreshing a permission should update its validator chain", func() {
			b.At(70)
			p5.Deposit = "15"
			So(b.SavePermission(p5, types.EventExtendPermission), ShouldBeNil)

			agg, err := a.RefreshPermission(ctx, 5)
			So(err, ShouldBeNil)
			So(agg.Weight.String(), ShouldEqual, "15")
			So(agg.Issued, ShouldEqual, 1)
			So(loadPermission(st, 4).Weight.String(), ShouldEqual, "40")
			So(loadPermission(st, 1).Weight.String(), ShouldEqual, "1290")
			So(loadPermission(st, 6).Weight.String(), ShouldEqual, "10")

			_, err = a.RefreshPermission(ctx, 404)
			So(temporal.IsNotFound(err), ShouldBeTrue)
		})

		Convey("refreshing a root should update the chain stats of its subtree", func() {
			b.At(80)
			So(b.Slash(p1, 100, "gov"), ShouldBeNil)
			So(loadPermission(st, 2).NetworkSlashEvents, ShouldEqual, 0)

			agg, err := a.RefreshPermission(ctx, 1)
			So(err, ShouldBeNil)
			So(agg.NetworkSlashEvents, ShouldEqual, 1)
			So(agg.NetworkSlashedAmount.String(), ShouldEqual, "100")

			for _, id := range []int64{2, 3, 4, 5} {
				p := loadPermission(st, id)
				So(p.NetworkSlashEvents, ShouldEqual, 1)
				So(p.NetworkSlashedAmount.String(), ShouldEqual, "100")
			}
			So(loadPermission(st, 2).EcosystemSlashEvents, ShouldEqual, 1)
			So(loadPermission(st, 5).Issued, ShouldEqual, 1)
			So(loadPermission(st, 6).NetworkSlashEvents, ShouldEqual, 0)

			refreshed := snapshotAggregates(st, 1, 2, 3, 4, 5, 6)
			_, err = a.RecomputeSchema(ctx, 7)
			So(err, ShouldBeNil)
			So(snapshotAggregates(st, 1, 2, 3, 4, 5, 6), ShouldEqual, refreshed)
		})

		Convey("recomputing an unknown schema should write nothing", func() {
			n, err := a.RecomputeSchema(ctx, 404)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}
