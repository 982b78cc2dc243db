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

package slashledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/trustindex/slashledger"
	"github.com/CovenantSQL/trustindex/test"
	"github.com/CovenantSQL/trustindex/types"
)

func event(perm, height int64, typ types.PermissionType, by, slashed, repaid string) slashledger.Event {
	return slashledger.Event{
		PermissionID:   perm,
		SchemaID:       7,
		Type:           typ,
		Height:         height,
		CreatedAt:      test.BlockTime(height),
		EventType:      types.EventSlashPermissionTrustDeposit,
		SlashedBy:      by,
		SlashedDeposit: slashed,
		RepaidDeposit:  repaid,
	}
}

func TestReconstruct(t *testing.T) {
	ctl := slashledger.Context{Controllers: map[int64]string{7: "gov"}}

	Convey("cumulative totals should be diffed against the previous row", t, func() {
		events := []slashledger.Event{
			event(1, 10, types.PermissionIssuer, "gov", "100", "0"),
			event(1, 11, types.PermissionIssuer, "gov", "100", "50"),
			event(1, 12, types.PermissionIssuer, "gov", "250", "50"),
		}
		l, err := slashledger.Reconstruct(events, ctl)
		So(err, ShouldBeNil)
		So(l.Ecosystem.Events, ShouldEqual, 1)
		So(l.Ecosystem.Slashed.String(), ShouldEqual, "150")
		So(l.Ecosystem.Repaid.String(), ShouldEqual, "50")
		So(l.Network.Events, ShouldEqual, 0)
		So(l.Network.Slashed.IsZero(), ShouldBeTrue)
	})

	Convey("zero seeds should count the first slash in full", t, func() {
		events := []slashledger.Event{
			event(1, 10, types.PermissionIssuer, "gov", "100", "0"),
			event(1, 12, types.PermissionIssuer, "gov", "250", "0"),
		}
		seeded := ctl
		seeded.Seeds = slashledger.ZeroSeeds([]int64{1})
		l, err := slashledger.Reconstruct(events, seeded)
		So(err, ShouldBeNil)
		So(l.Ecosystem.Events, ShouldEqual, 2)
		So(l.Ecosystem.Slashed.String(), ShouldEqual, "250")
	})

	Convey("ecosystem permissions should feed the network bucket", t, func() {
		events := []slashledger.Event{
			event(2, 12, types.PermissionEcosystem, "gov", "30", "0"),
			event(2, 13, types.PermissionEcosystem, "anyone", "30", "10"),
			event(3, 12, types.PermissionVerifier, "stranger", "40", "0"),
			event(3, 14, types.PermissionVerifier, "stranger", "40", "40"),
		}
		seeded := ctl
		seeded.Seeds = slashledger.ZeroSeeds([]int64{2, 3})
		l, err := slashledger.Reconstruct(events, seeded)
		So(err, ShouldBeNil)
		So(l.Network.Events, ShouldEqual, 1)
		So(l.Network.Slashed.String(), ShouldEqual, "30")
		So(l.Network.Repaid.String(), ShouldEqual, "10")
		So(l.Ecosystem.Events, ShouldEqual, 0)
		So(l.Ecosystem.Repaid.IsZero(), ShouldBeTrue)
	})

	Convey("repays should follow the bucket of the last slash", t, func() {
		events := []slashledger.Event{
			event(4, 20, types.PermissionIssuer, "gov", "10", "0"),
			event(4, 21, types.PermissionIssuer, "stranger", "10", "5"),
			event(4, 22, types.PermissionIssuer, "stranger", "20", "5"),
			event(4, 23, types.PermissionIssuer, "gov", "20", "15"),
		}
		seeded := ctl
		seeded.Seeds = slashledger.ZeroSeeds([]int64{4})
		l, err := slashledger.Reconstruct(events, seeded)
		So(err, ShouldBeNil)
		So(l.Ecosystem.Events, ShouldEqual, 1)
		So(l.Ecosystem.Slashed.String(), ShouldEqual, "10")
		So(l.Ecosystem.Repaid.String(), ShouldEqual, "5")
	})

	Convey("events should be ordered before reconstruction", t, func() {
		events := []slashledger.Event{
			event(1, 12, types.PermissionIssuer, "gov", "250", "50"),
			event(1, 10, types.PermissionIssuer, "gov", "100", "0"),
			event(1, 11, types.PermissionIssuer, "gov", "100", "50"),
		}
		l, err := slashledger.Reconstruct(events, ctl)
		So(err, ShouldBeNil)
		So(l.Ecosystem.Slashed.String(), ShouldEqual, "150")
		So(events[0].Height, ShouldEqual, 12)

		same := []slashledger.Event{
			event(1, 10, types.PermissionIssuer, "gov", "100", "0"),
			event(1, 10, types.PermissionIssuer, "gov", "0", "0"),
		}
		same[0].CreatedAt = same[0].CreatedAt.Add(time.Millisecond)
		l, err = slashledger.Reconstruct(same, ctl)
		So(err, ShouldBeNil)
		So(l.Ecosystem.Slashed.String(), ShouldEqual, "100")
	})

	Convey("malformed amounts should fail only their permission", t, func() {
		events := []slashledger.Event{
			event(1, 10, types.PermissionIssuer, "gov", "0", "0"),
			event(1, 11, types.PermissionIssuer, "gov", "ten", "0"),
			event(2, 10, types.PermissionIssuer, "gov", "0", "0"),
			event(2, 11, types.PermissionIssuer, "gov", "5", "0"),
		}
		ledgers, failed := slashledger.PerPermission(events, ctl)
		So(failed, ShouldContainKey, int64(1))
		So(errors.Cause(failed[1]), ShouldEqual, types.ErrInvalidAmount)
		So(ledgers, ShouldContainKey, int64(2))
		So(ledgers[2].Ecosystem.Slashed.String(), ShouldEqual, "5")

		_, err := slashledger.Reconstruct(events, ctl)
		So(errors.Cause(err), ShouldEqual, types.ErrInvalidAmount)
	})

	Convey("ledgers should sum and apply to aggregates", t, func() {
		a := slashledger.Ledger{Ecosystem: slashledger.Bucket{Events: 1, Slashed: types.NewAmount(5)}}
		b := slashledger.Ledger{Network: slashledger.Bucket{Events: 2, Repaid: types.NewAmount(3)}}
		sum := a.Add(b)
		var agg types.Aggregate
		sum.Apply(&agg)
		So(agg.EcosystemSlashEvents, ShouldEqual, 1)
		So(agg.EcosystemSlashedAmount.String(), ShouldEqual, "5")
		So(agg.NetworkSlashEvents, ShouldEqual, 2)
		So(agg.NetworkSlashedAmountRepaid.String(), ShouldEqual, "3")
	})
}

func TestLoader(t *testing.T) {
	Convey("given a schema with slashed and repaid permissions", t, func() {
		ctx := context.Background()
		st, err := test.NewStore()
		So(err, ShouldBeNil)
		defer st.Close()

		b := test.NewBuilder(st)
		_, err = b.Registry(1, "gov")
		So(err, ShouldBeNil)
		_, err = b.Schema(7, 1, types.ModeEcosystem, types.ModeEcosystem)
		So(err, ShouldBeNil)

		b.At(10)
		root, err := b.Permission(1, 7, types.PermissionEcosystem, nil, "eco", "1000")
		So(err, ShouldBeNil)
		child, err := b.Permission(2, 7, types.PermissionIssuer, test.Int64(1), "issuer", "200")
		So(err, ShouldBeNil)

		b.At(20)
		So(b.Slash(child, 50, "gov"), ShouldBeNil)
		b.At(30)
		So(b.Repay(child, 50, "issuer"), ShouldBeNil)
		b.At(40)
		So(b.Slash(root, 100, "network"), ShouldBeNil)
		So(b.Slash(child, 30, "stranger"), ShouldBeNil)

		l := slashledger.NewLoader(st)

		Convey("only slash and repay events should be loaded", func() {
			events, err := l.LoadSchema(ctx, 7, nil)
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 4)
			So(events[0].PermissionID, ShouldEqual, 1)
			So(events[1].Height, ShouldEqual, 20)

			events, err = l.Load(ctx, []int64{2}, test.Int64(35))
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 2)
			So(events[1].EventType, ShouldEqual, types.EventRepayPermissionSlashedTrustDeposit)

			events, err = l.Load(ctx, nil, nil)
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)
		})

		Convey("controller should be resolved through the registry", func() {
			c, err := l.Controller(ctx, 7, nil)
			So(err, ShouldBeNil)
			So(c, ShouldEqual, "gov")

			c, err = l.Controller(ctx, 7, test.Int64(0))
			So(err, ShouldBeNil)
			So(c, ShouldEqual, "")

			c, err = l.Controller(ctx, 99, nil)
			So(err, ShouldBeNil)
			So(c, ShouldEqual, "")
		})

		Convey("ledger should be computed live and as of a height", func() {
			ledger, err := l.Compute(ctx, 7, []int64{1, 2}, nil)
			So(err, ShouldBeNil)
			So(ledger.Ecosystem.Events, ShouldEqual, 1)
			So(ledger.Ecosystem.Slashed.String(), ShouldEqual, "50")
			So(ledger.Ecosystem.Repaid.String(), ShouldEqual, "50")
			So(ledger.Network.Events, ShouldEqual, 1)
			So(ledger.Network.Slashed.String(), ShouldEqual, "100")

			ledger, err = l.Compute(ctx, 7, []int64{1, 2}, test.Int64(25))
			So(err, ShouldBeNil)
			So(ledger.Ecosystem.Events, ShouldEqual, 1)
			So(ledger.Ecosystem.Repaid.IsZero(), ShouldBeTrue)
			So(ledger.Network.Events, ShouldEqual, 0)
		})
	})
}
