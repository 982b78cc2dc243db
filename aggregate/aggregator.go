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

// Package aggregate materializes the hierarchical aggregates of permissions.
//
// Per credential schema the permissions form a forest linked by validator_perm_id.
// Weight and participants are subtree sums computed in post-order, issued and verified
// count the session authz entries of a permission and its validator chain, slash stats
// sum the slash ledgers over the same chain. All of them are pure functions of the
// current and history tables, so a recomputation can be re-run from scratch at any time.
package aggregate

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ivpusic/grpool"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/metric"
	"github.com/CovenantSQL/trustindex/slashledger"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils/log"
	"github.com/CovenantSQL/trustindex/utils/timer"
)

// Rollup refreshes the schema and trust registry aggregates after the permissions are rebuilt.
type Rollup interface {
	RefreshRollups(ctx context.Context) error
}

// Summary reports a full recomputation.
type Summary struct {
	RunID       string        `json:"run_id"`
	Schemas     int           `json:"schemas"`
	Permissions int           `json:"permissions"`
	Failed      []int64       `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// Aggregator recomputes the materialized aggregates of permissions.
type Aggregator struct {
	st     *storage.Store
	cfg    conf.AggregateConfig
	rollup Rollup
	now    func() time.Time
}

// NewAggregator returns an aggregator writing to st.
func NewAggregator(st *storage.Store, cfg conf.AggregateConfig) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = conf.DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = conf.DefaultWorkers
	}
	return &Aggregator{
		st:  st,
		cfg: cfg,
		now: time.Now,
	}
}

// SetRollup sets the refresher run at the end of RecomputeAll.
func (a *Aggregator) SetRollup(r Rollup) {
	a.rollup = r
}

// SetClock replaces the clock used to classify permissions.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// RecomputeSchema rebuilds the aggregates of every permission of a schema and
// returns the number of permissions written.
func (a *Aggregator) RecomputeSchema(ctx context.Context, schemaID int64) (int, error) {
	return a.recomputeSchema(ctx, schemaID, nil, a.now())
}

func (a *Aggregator) recomputeSchema(ctx context.Context, schemaID int64, usage *Usage, now time.Time) (n int, err error) {
	err = a.st.Transaction(ctx, func(tx *storage.Tx) (err error) {
		var perms []*types.Permission
		err = temporal.NewEngine(tx).LatestPerKey(ctx, temporal.MustLookup(temporal.EntityPermission), nil, &perms,
			temporal.WithFilter("schema_id", schemaID))
		if err != nil {
			return
		}
		if len(perms) == 0 {
			return
		}
		if usage == nil {
			if usage, err = LoadUsage(ctx, tx, nil); err != nil {
				return
			}
		}

		f := BuildForest(perms)
		ledgers, failed, err := loadLedgers(ctx, tx, f, schemaID)
		if err != nil {
			return
		}

		var aggs map[int64]*types.Aggregate
		if aggs, err = Compute(f, now, usage, ledgers, failed); err != nil {
			return
		}

		n, err = a.write(ctx, tx, f, aggs)
		return
	})
	if err != nil {
		err = errors.Wrapf(err, "recompute schema %d", schemaID)
		n = 0
	}
	return
}

func loadLedgers(
	ctx context.Context, q storage.Querier, f *Forest, schemaID int64,
) (ledgers map[int64]slashledger.Ledger, failed map[int64]error, err error) {
	loader := slashledger.NewLoader(q)
	var controller string
	if controller, err = loader.Controller(ctx, schemaID, nil); err != nil {
		return
	}
	var events []slashledger.Event
	if events, err = loader.LoadSchema(ctx, schemaID, nil); err != nil {
		return
	}
	ledgers, failed = slashledger.PerPermission(events, slashledger.Context{
		Seeds:       slashledger.ZeroSeeds(f.IDs()),
		Controllers: map[int64]string{schemaID: controller},
	})
	return
}

// write stores aggregates in post-order, in batches of the configured size.
func (a *Aggregator) write(ctx context.Context, tx *storage.Tx, f *Forest, aggs map[int64]*types.Aggregate) (n int, err error) {
	for i, p := range f.PostOrder() {
		if i > 0 && i%a.cfg.BatchSize == 0 {
			if err = ctx.Err(); err != nil {
				return
			}
			if a.cfg.GCEnabled() {
				runtime.GC()
			}
			log.WithFields(log.Fields{"schema": p.SchemaID, "written": i}).Debug("aggregate batch written")
		}
		if err = storage.UpdateAggregate(ctx, tx, storage.TablePermissions, p.ID, aggs[p.ID]); err != nil {
			return
		}
		n++
	}
	return
}

// SchemaIDs returns the ids of all credential schemas.
func SchemaIDs(ctx context.Context, q storage.Querier) (ids []int64, err error) {
	if err = q.Select(ctx, &ids, "SELECT id FROM "+storage.TableCredentialSchemas+" ORDER BY id"); err != nil {
		err = errors.Wrap(err, "list credential schemas")
	}
	return
}

// RecomputeAll rebuilds the aggregates of every schema, then the schema and registry rollups.
// A failing schema is logged and reported in the summary, the others are still written.
func (a *Aggregator) RecomputeAll(ctx context.Context) (s *Summary, err error) {
	t := timer.NewTimer()
	now := a.now()
	s = &Summary{RunID: uuid.Must(uuid.NewV4()).String()}

	var ids []int64
	if ids, err = SchemaIDs(ctx, a.st); err != nil {
		return
	}
	t.Add("list")

	var usage *Usage
	if usage, err = LoadUsage(ctx, a.st, nil); err != nil {
		return
	}
	t.Add("usage")

	if len(ids) > 0 {
		var mu sync.Mutex
		pool := grpool.NewPool(a.cfg.Workers, len(ids))
		defer pool.Release()
		pool.WaitCount(len(ids))

		for _, id := range ids {
			id := id
			pool.JobQueue <- func() {
				defer pool.JobDone()
				n, err := a.recomputeSchema(ctx, id, usage, now)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.WithFields(log.Fields{"run": s.RunID, "schema": id}).WithError(err).Warning("schema recompute failed")
					metric.SchemaRecomputes.WithLabelValues(metric.OutcomeFailed).Inc()
					s.Failed = append(s.Failed, id)
					return
				}
				metric.SchemaRecomputes.WithLabelValues(metric.OutcomeSuccess).Inc()
				s.Schemas++
				s.Permissions += n
			}
		}
		pool.WaitAll()
		sort.Slice(s.Failed, func(i, j int) bool { return s.Failed[i] < s.Failed[j] })
	}
	t.Add("schemas")

	if a.rollup != nil {
		if err = a.rollup.RefreshRollups(ctx); err != nil {
			err = errors.Wrap(err, "refresh rollups")
			return
		}
	}
	t.Add("rollups")

	s.Duration = t.Total()
	metric.RecomputeDuration.Observe(s.Duration.Seconds())
	log.WithFields(t.ToLogFields()).WithFields(log.Fields{
		"run":         s.RunID,
		"schemas":     s.Schemas,
		"permissions": s.Permissions,
		"failed":      len(s.Failed),
	}).Info("aggregate recompute finished")
	return
}

// RefreshPermission recomputes one permission, its validator chain and its subtree from
// fresh reads.
// The reads run concurrently and complete before anything is written.
func (a *Aggregator) RefreshPermission(ctx context.Context, permID int64) (agg *types.Aggregate, err error) {
	now := a.now()
	var p types.Permission
	if err = temporal.NewEngine(a.st).GetAsOf(ctx, temporal.MustLookup(temporal.EntityPermission), permID, nil, &p); err != nil {
		return
	}

	var (
		f       *Forest
		usage   *Usage
		ledgers map[int64]slashledger.Ledger
		failed  map[int64]error
	)
	var perms []*types.Permission
	err = temporal.NewEngine(a.st).LatestPerKey(ctx, temporal.MustLookup(temporal.EntityPermission), nil, &perms,
		temporal.WithFilter("schema_id", p.SchemaID))
	if err != nil {
		return
	}
	f = BuildForest(perms)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		usage, err = LoadUsage(gctx, a.st, nil)
		return
	})
	g.Go(func() (err error) {
		ledgers, failed, err = loadLedgers(gctx, a.st, f, p.SchemaID)
		return
	})
	if err = g.Wait(); err != nil {
		err = errors.Wrapf(err, "refresh permission %d", permID)
		return
	}

	var aggs map[int64]*types.Aggregate
	if aggs, err = Compute(f, now, usage, ledgers, failed); err != nil {
		return
	}

	// weight and participants flow up the validator chain, issuance and slash stats flow
	// down into the subtree.
	touched := f.Ancestors(permID)
	for id := range f.Descendants(permID) {
		touched[id] = struct{}{}
	}
	err = a.st.Transaction(ctx, func(tx *storage.Tx) (err error) {
		for _, p := range f.PostOrder() {
			if _, ok := touched[p.ID]; !ok {
				continue
			}
			if err = storage.UpdateAggregate(ctx, tx, storage.TablePermissions, p.ID, aggs[p.ID]); err != nil {
				return
			}
		}
		return
	})
	if err != nil {
		return
	}
	agg = aggs[permID]
	return
}
