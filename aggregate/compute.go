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

package aggregate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/permission"
	"github.com/CovenantSQL/trustindex/slashledger"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils/log"
)

// ComputeWeights returns deposit(p) plus the weight of all children for every permission.
func ComputeWeights(f *Forest) (weights map[int64]types.Amount, err error) {
	weights = make(map[int64]types.Amount, len(f.nodes))
	for _, i := range f.postOrder {
		n := &f.nodes[i]
		var w types.Amount
		if w, err = types.ParseAmount(n.perm.Deposit); err != nil {
			err = errors.Wrapf(err, "deposit of permission %d", n.perm.ID)
			weights = nil
			return
		}
		for _, c := range n.children {
			w = w.Add(weights[f.nodes[c].perm.ID])
		}
		weights[n.perm.ID] = w
	}
	return
}

// ComputeParticipants returns the number of ACTIVE permissions in the subtree of every permission.
func ComputeParticipants(f *Forest, now time.Time) map[int64]int64 {
	participants := make(map[int64]int64, len(f.nodes))
	for _, i := range f.postOrder {
		n := &f.nodes[i]
		var c int64
		if permission.IsActive(&n.perm.PermissionFields, now) {
			c = 1
		}
		for _, child := range n.children {
			c += participants[f.nodes[child].perm.ID]
		}
		participants[n.perm.ID] = c
	}
	return participants
}

// Usage counts session authz entries per issuer and verifier permission.
type Usage struct {
	Issued   map[int64]int64
	Verified map[int64]int64
}

// CountUsage tallies the authz entries of sessions.
func CountUsage(authz []types.SessionAuthzList) *Usage {
	u := &Usage{
		Issued:   make(map[int64]int64),
		Verified: make(map[int64]int64),
	}
	for _, list := range authz {
		for _, a := range list {
			if a.IssuerPermID != nil {
				u.Issued[*a.IssuerPermID]++
			}
			if a.VerifierPermID != nil {
				u.Verified[*a.VerifierPermID]++
			}
		}
	}
	return u
}

// Over returns the entries whose permission is a member of set.
func (u *Usage) Over(set map[int64]struct{}) (issued, verified int64) {
	for id := range set {
		issued += u.Issued[id]
		verified += u.Verified[id]
	}
	return
}

// CountIssuedVerified counts the authz entries of sessions exercising a permission of set.
func CountIssuedVerified(set map[int64]struct{}, authz []types.SessionAuthzList) (issued, verified int64) {
	return CountUsage(authz).Over(set)
}

// LoadUsage reads the authz entries of every session, as of height if set.
func LoadUsage(ctx context.Context, q storage.Querier, height *int64) (u *Usage, err error) {
	eng := temporal.NewEngine(q)
	tbl := temporal.MustLookup(temporal.EntityPermissionSession)
	var authz []types.SessionAuthzList

	if height == nil {
		var sessions []*types.PermissionSession
		if err = eng.LatestPerKey(ctx, tbl, nil, &sessions, temporal.WithColumns("id", "authz")); err != nil {
			return
		}
		for _, s := range sessions {
			authz = append(authz, s.Authz)
		}
	} else {
		var sessions []*types.PermissionSessionHistory
		if err = eng.LatestPerKey(ctx, tbl, height, &sessions,
			temporal.WithColumns("id", "session_id", "authz")); err != nil {
			return
		}
		for _, s := range sessions {
			authz = append(authz, s.Authz)
		}
	}

	u = CountUsage(authz)
	return
}

// SlashStats sums the per permission ledgers over the ancestor set of every permission.
// A permission whose ancestor set contains a failed ledger gets zero slash stats.
func SlashStats(f *Forest, ledgers map[int64]slashledger.Ledger, failed map[int64]error) map[int64]slashledger.Ledger {
	out := make(map[int64]slashledger.Ledger, len(f.nodes))
	for _, n := range f.nodes {
		var (
			sum slashledger.Ledger
			bad error
		)
		for id := range f.Ancestors(n.perm.ID) {
			if err, ok := failed[id]; ok {
				bad = err
				break
			}
			sum = sum.Add(ledgers[id])
		}
		if bad != nil {
			log.WithFields(log.Fields{
				"permission": n.perm.ID,
				"schema":     n.perm.SchemaID,
			}).WithError(bad).Warning("slash stats failed, defaulting to zero")
			sum = slashledger.Ledger{}
		}
		out[n.perm.ID] = sum
	}
	return out
}

// Compute returns the aggregate of every permission of the forest.
func Compute(
	f *Forest, now time.Time, usage *Usage, ledgers map[int64]slashledger.Ledger, failed map[int64]error,
) (aggs map[int64]*types.Aggregate, err error) {
	var weights map[int64]types.Amount
	if weights, err = ComputeWeights(f); err != nil {
		return
	}
	participants := ComputeParticipants(f, now)
	slash := SlashStats(f, ledgers, failed)

	aggs = make(map[int64]*types.Aggregate, len(f.nodes))
	for _, n := range f.nodes {
		id := n.perm.ID
		a := &types.Aggregate{
			Weight:       weights[id],
			Participants: participants[id],
		}
		if usage != nil {
			a.Issued, a.Verified = usage.Over(f.Ancestors(id))
		}
		slash[id].Apply(a)
		aggs[id] = a
	}
	return
}
