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

// Package slashledger rebuilds slash and repay totals from permission history.
//
// The slashed_deposit and repaid_deposit columns of a history row are cumulative totals
// at that event, so the ledger diffs every row against the last seen totals of the same
// permission. A slash increment of an ECOSYSTEM permission belongs to the network bucket,
// one imposed by the trust registry controller to the ecosystem bucket, any other to
// neither. A repay increment belongs to the bucket of the last slash of the permission.
package slashledger

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/types"
)

// Event is the part of a permission history row the ledger needs.
type Event struct {
	ID             int64                `db:"id"`
	PermissionID   int64                `db:"permission_id"`
	SchemaID       int64                `db:"schema_id"`
	Type           types.PermissionType `db:"type"`
	Height         int64                `db:"height"`
	CreatedAt      time.Time            `db:"created_at"`
	EventType      string               `db:"event_type"`
	SlashedBy      string               `db:"slashed_by"`
	SlashedDeposit string               `db:"slashed_deposit"`
	RepaidDeposit  string               `db:"repaid_deposit"`
}

// Baseline is the last seen cumulative totals of a permission.
type Baseline struct {
	Slashed types.Amount
	Repaid  types.Amount
}

// Context provides what the reconstruction needs besides the events.
type Context struct {
	// Seeds are starting baselines per permission. Without a seed the first event of a
	// permission only establishes its baseline.
	Seeds map[int64]Baseline
	// Controllers maps a schema id to the controller account of its trust registry.
	Controllers map[int64]string
}

// Bucket accumulates slash statistics of one attribution class.
type Bucket struct {
	Events  int64        `json:"events"`
	Slashed types.Amount `json:"slashed"`
	Repaid  types.Amount `json:"repaid"`
}

// Add returns the sum of two buckets.
func (b Bucket) Add(o Bucket) Bucket {
	return Bucket{
		Events:  b.Events + o.Events,
		Slashed: b.Slashed.Add(o.Slashed),
		Repaid:  b.Repaid.Add(o.Repaid),
	}
}

// Ledger holds the ecosystem and network buckets of a scope.
type Ledger struct {
	Ecosystem Bucket `json:"ecosystem"`
	Network   Bucket `json:"network"`
}

// Add returns the sum of two ledgers.
func (l Ledger) Add(o Ledger) Ledger {
	return Ledger{
		Ecosystem: l.Ecosystem.Add(o.Ecosystem),
		Network:   l.Network.Add(o.Network),
	}
}

// Apply copies the ledger into the slash columns of an aggregate.
func (l Ledger) Apply(a *types.Aggregate) {
	a.EcosystemSlashEvents = l.Ecosystem.Events
	a.EcosystemSlashedAmount = l.Ecosystem.Slashed
	a.EcosystemSlashedAmountRepaid = l.Ecosystem.Repaid
	a.NetworkSlashEvents = l.Network.Events
	a.NetworkSlashedAmount = l.Network.Slashed
	a.NetworkSlashedAmountRepaid = l.Network.Repaid
}

type bucketKind int

const (
	bucketNone bucketKind = iota
	bucketEcosystem
	bucketNetwork
)

func classify(ev *Event, ctl *Context) bucketKind {
	if ev.Type == types.PermissionEcosystem {
		return bucketNetwork
	}
	if controller, ok := ctl.Controllers[ev.SchemaID]; ok && controller != "" && ev.SlashedBy == controller {
		return bucketEcosystem
	}
	return bucketNone
}

func (l *Ledger) bucket(k bucketKind) *Bucket {
	switch k {
	case bucketEcosystem:
		return &l.Ecosystem
	case bucketNetwork:
		return &l.Network
	}
	return nil
}

// SortEvents orders events by permission, height and creation time.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.PermissionID != b.PermissionID {
			return a.PermissionID < b.PermissionID
		}
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// PerPermission reconstructs the ledger of every permission found in events.
// A permission with a malformed amount is reported in failed and left out of ledgers.
func PerPermission(events []Event, ctl Context) (ledgers map[int64]Ledger, failed map[int64]error) {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	ledgers = make(map[int64]Ledger)
	failed = make(map[int64]error)
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].PermissionID == sorted[start].PermissionID {
			end++
		}
		id := sorted[start].PermissionID
		if l, err := reconstructOne(sorted[start:end], &ctl); err != nil {
			failed[id] = err
		} else {
			ledgers[id] = l
		}
		start = end
	}
	return
}

// Reconstruct returns the ledger of all events, failing on the first malformed amount.
func Reconstruct(events []Event, ctl Context) (total Ledger, err error) {
	ledgers, failed := PerPermission(events, ctl)
	if len(failed) > 0 {
		ids := make([]int64, 0, len(failed))
		for id := range failed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		err = failed[ids[0]]
		return
	}
	for _, l := range ledgers {
		total = total.Add(l)
	}
	return
}

// reconstructOne walks the sorted events of a single permission.
func reconstructOne(events []Event, ctl *Context) (l Ledger, err error) {
	var (
		base      Baseline
		started   bool
		lastSlash = bucketNone
		slashSeen bool
	)
	if seed, ok := ctl.Seeds[events[0].PermissionID]; ok {
		base = seed
		started = true
	}

	for i := range events {
		ev := &events[i]
		var slashed, repaid types.Amount
		if slashed, err = types.ParseAmount(ev.SlashedDeposit); err != nil {
			err = errors.Wrapf(err, "slashed_deposit of permission %d at height %d", ev.PermissionID, ev.Height)
			return
		}
		if repaid, err = types.ParseAmount(ev.RepaidDeposit); err != nil {
			err = errors.Wrapf(err, "repaid_deposit of permission %d at height %d", ev.PermissionID, ev.Height)
			return
		}

		if !started {
			base = Baseline{Slashed: slashed, Repaid: repaid}
			started = true
			continue
		}

		if delta := slashed.Sub(base.Slashed); delta.IsPositive() {
			lastSlash = classify(ev, ctl)
			slashSeen = true
			if b := l.bucket(lastSlash); b != nil {
				b.Events++
				b.Slashed = b.Slashed.Add(delta)
			}
		}
		base.Slashed = slashed

		if delta := repaid.Sub(base.Repaid); delta.IsPositive() {
			kind := lastSlash
			if !slashSeen {
				kind = classify(ev, ctl)
			}
			if b := l.bucket(kind); b != nil {
				b.Repaid = b.Repaid.Add(delta)
			}
		}
		base.Repaid = repaid
	}
	return
}
