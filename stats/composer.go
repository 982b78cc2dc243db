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

// Package stats composes schema, trust registry and global statistics from the raw
// tables, either live or as of a block height.
//
// Unlike the permission aggregates, the issued and verified counts of a schema are
// taken over the whole permission set of the schema regardless of tree position.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/permission"
	"github.com/CovenantSQL/trustindex/slashledger"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils/log"
)

// SchemaStats are the statistics of a credential schema.
type SchemaStats struct {
	SchemaID    int64  `json:"schema_id"`
	TrID        int64  `json:"tr_id"`
	Height      *int64 `json:"height"`
	Permissions int64  `json:"permissions"`
	types.Aggregate
}

// TrustRegistryStats are the statistics of a trust registry, summed over its schemas.
type TrustRegistryStats struct {
	TrID    int64  `json:"tr_id"`
	Height  *int64 `json:"height"`
	Schemas int64  `json:"schemas"`
	types.Aggregate
}

// Composer computes statistics over a store. Every call reads the store afresh.
type Composer struct {
	st  *storage.Store
	now func() time.Time
}

// NewComposer returns a composer reading from st.
func NewComposer(st *storage.Store) *Composer {
	return &Composer{
		st:  st,
		now: time.Now,
	}
}

// SetClock replaces the wall clock.
func (c *Composer) SetClock(now func() time.Time) {
	c.now = now
}

// scope holds the reads shared by all schemas of one computation.
type scope struct {
	q      storage.Querier
	eng    *temporal.Engine
	height *int64
	at     time.Time
	usage  *aggregate.Usage
}

type schemaRow struct {
	ID int64
	types.CredentialSchemaFields
}

type registryRow struct {
	ID int64
	types.TrustRegistryFields
}

// evaluationTime returns the instant permissions are classified at for height: the
// creation time of the newest permission event at or below height, or now.
func (c *Composer) evaluationTime(ctx context.Context, q storage.Querier, height *int64) (at time.Time, err error) {
	if height == nil {
		return c.now(), nil
	}
	var found bool
	if at, found, err = temporal.NewEngine(q).LatestEventTime(ctx, temporal.MustLookup(temporal.EntityPermission), *height); err != nil {
		return
	}
	if !found {
		return c.now(), nil
	}
	return
}

func (c *Composer) newScope(ctx context.Context, q storage.Querier, height *int64) (s *scope, err error) {
	s = &scope{
		q:      q,
		eng:    temporal.NewEngine(q),
		height: height,
	}
	if s.at, err = c.evaluationTime(ctx, q, height); err != nil {
		return
	}
	if s.usage, err = aggregate.LoadUsage(ctx, q, height); err != nil {
		return
	}
	return
}

func (s *scope) schema(ctx context.Context, id int64) (row *schemaRow, err error) {
	tbl := temporal.MustLookup(temporal.EntityCredentialSchema)
	if s.height == nil {
		var cs types.CredentialSchema
		if err = s.eng.GetAsOf(ctx, tbl, id, nil, &cs); err != nil {
			return
		}
		return &schemaRow{ID: cs.ID, CredentialSchemaFields: cs.CredentialSchemaFields}, nil
	}
	var h types.CredentialSchemaHistory
	if err = s.eng.GetAsOf(ctx, tbl, id, s.height, &h); err != nil {
		return
	}
	return &schemaRow{ID: h.CsID, CredentialSchemaFields: h.CredentialSchemaFields}, nil
}

func (s *scope) schemas(ctx context.Context, opts ...temporal.Option) (rows []*schemaRow, err error) {
	tbl := temporal.MustLookup(temporal.EntityCredentialSchema)
	if s.height == nil {
		var cur []*types.CredentialSchema
		if err = s.eng.LatestPerKey(ctx, tbl, nil, &cur, opts...); err != nil {
			return
		}
		for _, cs := range cur {
			rows = append(rows, &schemaRow{ID: cs.ID, CredentialSchemaFields: cs.CredentialSchemaFields})
		}
		return
	}
	var hist []*types.CredentialSchemaHistory
	if err = s.eng.LatestPerKey(ctx, tbl, s.height, &hist, opts...); err != nil {
		return
	}
	for _, h := range hist {
		rows = append(rows, &schemaRow{ID: h.CsID, CredentialSchemaFields: h.CredentialSchemaFields})
	}
	return
}

func (s *scope) registry(ctx context.Context, id int64) (row *registryRow, err error) {
	tbl := temporal.MustLookup(temporal.EntityTrustRegistry)
	if s.height == nil {
		var tr types.TrustRegistry
		if err = s.eng.GetAsOf(ctx, tbl, id, nil, &tr); err != nil {
			return
		}
		return &registryRow{ID: tr.ID, TrustRegistryFields: tr.TrustRegistryFields}, nil
	}
	var h types.TrustRegistryHistory
	if err = s.eng.GetAsOf(ctx, tbl, id, s.height, &h); err != nil {
		return
	}
	return &registryRow{ID: h.TrID, TrustRegistryFields: h.TrustRegistryFields}, nil
}

func (s *scope) registries(ctx context.Context) (rows []*registryRow, err error) {
	tbl := temporal.MustLookup(temporal.EntityTrustRegistry)
	if s.height == nil {
		var cur []*types.TrustRegistry
		if err = s.eng.LatestPerKey(ctx, tbl, nil, &cur); err != nil {
			return
		}
		for _, tr := range cur {
			rows = append(rows, &registryRow{ID: tr.ID, TrustRegistryFields: tr.TrustRegistryFields})
		}
		return
	}
	var hist []*types.TrustRegistryHistory
	if err = s.eng.LatestPerKey(ctx, tbl, s.height, &hist); err != nil {
		return
	}
	for _, h := range hist {
		rows = append(rows, &registryRow{ID: h.TrID, TrustRegistryFields: h.TrustRegistryFields})
	}
	return
}

func (s *scope) permissions(ctx context.Context, opts ...temporal.Option) (perms []*types.Permission, err error) {
	tbl := temporal.MustLookup(temporal.EntityPermission)
	if s.height == nil {
		err = s.eng.LatestPerKey(ctx, tbl, nil, &perms, opts...)
		return
	}
	var hist []*types.PermissionHistory
	if err = s.eng.LatestPerKey(ctx, tbl, s.height, &hist, opts...); err != nil {
		return
	}
	perms = make([]*types.Permission, 0, len(hist))
	for _, h := range hist {
		perms = append(perms, h.AsPermission())
	}
	return
}

func (s *scope) archived(at *time.Time) bool {
	return at != nil && !at.After(s.at)
}

// ledger reconstructs the slash ledger of a schema, malformed amounts yield zero stats.
func (s *scope) ledger(ctx context.Context, schemaID int64, ids []int64) (ledger slashledger.Ledger, err error) {
	loader := slashledger.NewLoader(s.q)
	var controller string
	if controller, err = loader.Controller(ctx, schemaID, s.height); err != nil {
		return
	}
	var events []slashledger.Event
	if events, err = loader.Load(ctx, ids, s.height); err != nil {
		return
	}
	ledger, err = slashledger.Reconstruct(events, slashledger.Context{
		Seeds:       slashledger.ZeroSeeds(ids),
		Controllers: map[int64]string{schemaID: controller},
	})
	if err != nil {
		log.WithField("schema", schemaID).WithError(err).Warning("schema slash stats failed, defaulting to zero")
		ledger, err = slashledger.Ledger{}, nil
	}
	return
}

func (s *scope) schemaStats(ctx context.Context, cs *schemaRow, perms []*types.Permission) (st *SchemaStats, err error) {
	st = &SchemaStats{
		SchemaID:    cs.ID,
		TrID:        cs.TrID,
		Height:      s.height,
		Permissions: int64(len(perms)),
	}
	ids := make([]int64, 0, len(perms))
	set := make(map[int64]struct{}, len(perms))
	for _, p := range perms {
		var deposit types.Amount
		if deposit, err = types.ParseAmount(p.Deposit); err != nil {
			err = errors.Wrapf(err, "deposit of permission %d", p.ID)
			return nil, err
		}
		st.Weight = st.Weight.Add(deposit)
		if permission.IsActive(&p.PermissionFields, s.at) {
			st.Participants++
		}
		ids = append(ids, p.ID)
		set[p.ID] = struct{}{}
	}
	st.Issued, st.Verified = s.usage.Over(set)

	var ledger slashledger.Ledger
	if ledger, err = s.ledger(ctx, cs.ID, ids); err != nil {
		return nil, err
	}
	ledger.Apply(&st.Aggregate)
	return
}

// ComputeSchemaStats returns the statistics of a schema, live or as of height.
// A schema without a row at height is reported as temporal.ErrNotFound.
func (c *Composer) ComputeSchemaStats(ctx context.Context, schemaID int64, height *int64) (st *SchemaStats, err error) {
	var s *scope
	if s, err = c.newScope(ctx, c.st, height); err != nil {
		return
	}
	var cs *schemaRow
	if cs, err = s.schema(ctx, schemaID); err != nil {
		return
	}
	var perms []*types.Permission
	if perms, err = s.permissions(ctx, temporal.WithFilter("schema_id", schemaID)); err != nil {
		return
	}
	return s.schemaStats(ctx, cs, perms)
}

func (s *scope) registryStats(ctx context.Context, tr *registryRow, schemas []*schemaRow) (st *TrustRegistryStats, err error) {
	st = &TrustRegistryStats{TrID: tr.ID, Height: s.height}
	for _, cs := range schemas {
		var perms []*types.Permission
		if perms, err = s.permissions(ctx, temporal.WithFilter("schema_id", cs.ID)); err != nil {
			return nil, err
		}
		var ss *SchemaStats
		if ss, err = s.schemaStats(ctx, cs, perms); err != nil {
			if errors.Cause(err) == types.ErrInvalidAmount {
				log.WithFields(log.Fields{"registry": tr.ID, "schema": cs.ID}).WithError(err).Warning("schema skipped")
				err = nil
				continue
			}
			return nil, err
		}
		st.Schemas++
		st.Aggregate = st.Aggregate.Add(ss.Aggregate)
	}
	return
}

// ComputeTrustRegistryStats returns the statistics of a trust registry, live or as of height.
func (c *Composer) ComputeTrustRegistryStats(ctx context.Context, trID int64, height *int64) (st *TrustRegistryStats, err error) {
	var s *scope
	if s, err = c.newScope(ctx, c.st, height); err != nil {
		return
	}
	var tr *registryRow
	if tr, err = s.registry(ctx, trID); err != nil {
		return
	}
	var schemas []*schemaRow
	if schemas, err = s.schemas(ctx, temporal.WithFilter("tr_id", trID)); err != nil {
		return
	}
	return s.registryStats(ctx, tr, schemas)
}

// ComputeGlobalMetrics returns the rollup over every registry and schema, live or as of height.
// Participants are the distinct grantees holding an ACTIVE permission.
func (c *Composer) ComputeGlobalMetrics(ctx context.Context, height *int64) (m *types.GlobalMetrics, err error) {
	var s *scope
	if s, err = c.newScope(ctx, c.st, height); err != nil {
		return
	}
	m = &types.GlobalMetrics{}

	var registries []*registryRow
	if registries, err = s.registries(ctx); err != nil {
		return nil, err
	}
	for _, tr := range registries {
		if s.archived(tr.Archived) {
			m.ArchivedTrustRegistries++
		} else {
			m.ActiveTrustRegistries++
		}
	}

	var schemas []*schemaRow
	if schemas, err = s.schemas(ctx); err != nil {
		return nil, err
	}

	var perms []*types.Permission
	if perms, err = s.permissions(ctx); err != nil {
		return nil, err
	}
	bySchema := make(map[int64][]*types.Permission)
	grantees := make(map[string]struct{})
	for _, p := range perms {
		bySchema[p.SchemaID] = append(bySchema[p.SchemaID], p)
		if permission.IsActive(&p.PermissionFields, s.at) {
			grantees[p.Grantee] = struct{}{}
		}
	}

	for _, cs := range schemas {
		if s.archived(cs.Archived) {
			m.ArchivedSchemas++
		} else {
			m.ActiveSchemas++
		}
		var ss *SchemaStats
		if ss, err = s.schemaStats(ctx, cs, bySchema[cs.ID]); err != nil {
			if errors.Cause(err) == types.ErrInvalidAmount {
				log.WithField("schema", cs.ID).WithError(err).Warning("schema skipped in global metrics")
				err = nil
				continue
			}
			return nil, err
		}
		m.Aggregate = m.Aggregate.Add(ss.Aggregate)
	}
	m.Participants = int64(len(grantees))
	return
}

// RefreshRollups writes the live schema and registry statistics into their cached aggregate columns.
func (c *Composer) RefreshRollups(ctx context.Context) error {
	return c.st.Transaction(ctx, func(tx *storage.Tx) (err error) {
		var s *scope
		if s, err = c.newScope(ctx, tx, nil); err != nil {
			return
		}
		var schemas []*schemaRow
		if schemas, err = s.schemas(ctx); err != nil {
			return
		}
		var registries []*registryRow
		if registries, err = s.registries(ctx); err != nil {
			return
		}

		byRegistry := make(map[int64]*types.Aggregate, len(registries))
		for _, tr := range registries {
			byRegistry[tr.ID] = &types.Aggregate{}
		}
		for _, cs := range schemas {
			var perms []*types.Permission
			if perms, err = s.permissions(ctx, temporal.WithFilter("schema_id", cs.ID)); err != nil {
				return
			}
			var ss *SchemaStats
			if ss, err = s.schemaStats(ctx, cs, perms); err != nil {
				if errors.Cause(err) != types.ErrInvalidAmount {
					return
				}
				log.WithField("schema", cs.ID).WithError(err).Warning("schema rollup skipped")
				err = nil
				continue
			}
			if err = storage.UpdateAggregate(ctx, tx, storage.TableCredentialSchemas, cs.ID, &ss.Aggregate); err != nil {
				return
			}
			if agg, ok := byRegistry[cs.TrID]; ok {
				*agg = agg.Add(ss.Aggregate)
			}
		}

		ids := make([]int64, 0, len(byRegistry))
		for id := range byRegistry {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if err = storage.UpdateAggregate(ctx, tx, storage.TableTrustRegistries, id, byRegistry[id]); err != nil {
				return
			}
		}
		log.WithFields(log.Fields{"schemas": len(schemas), "registries": len(ids)}).Debug("rollups refreshed")
		return
	})
}
