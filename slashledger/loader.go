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

package slashledger

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
)

const loadChunkSize = 500

var eventColumns = []string{
	"id", "permission_id", "schema_id", "type", "height", "created_at",
	"event_type", "slashed_by", "slashed_deposit", "repaid_deposit",
}

// Loader reads slash and repay events from the permission history.
type Loader struct {
	eng *temporal.Engine
}

// NewLoader returns a loader reading through q.
func NewLoader(q storage.Querier) *Loader {
	return &Loader{eng: temporal.NewEngine(q)}
}

func (l *Loader) selectEvents(ctx context.Context, cond string, args []interface{}, height *int64) (events []Event, err error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE event_type IN (?, ?) AND %s",
		storage.ColumnList("", eventColumns), storage.TablePermissionHistory, cond)
	args = append([]interface{}{
		types.EventSlashPermissionTrustDeposit, types.EventRepayPermissionSlashedTrustDeposit,
	}, args...)
	if height != nil {
		query += " AND height <= ?"
		args = append(args, *height)
	}
	query += " ORDER BY permission_id, height, created_at, id"

	var rows []*Event
	if err = l.eng.Querier().Select(ctx, &rows, query, args...); err != nil {
		err = errors.Wrap(err, "load slash events")
		return
	}
	events = make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, *r)
	}
	return
}

// Load returns the slash and repay events of the given permissions, bounded by height if set.
func (l *Loader) Load(ctx context.Context, permIDs []int64, height *int64) (events []Event, err error) {
	for _, chunk := range storage.Chunk(permIDs, loadChunkSize) {
		var part []Event
		part, err = l.selectEvents(ctx,
			fmt.Sprintf("permission_id IN (%s)", storage.In(len(chunk))), storage.Int64Args(chunk), height)
		if err != nil {
			return
		}
		events = append(events, part...)
	}
	return
}

// LoadSchema returns the slash and repay events of every permission of a schema.
func (l *Loader) LoadSchema(ctx context.Context, schemaID int64, height *int64) ([]Event, error) {
	return l.selectEvents(ctx, "schema_id = ?", []interface{}{schemaID}, height)
}

// Controller returns the controller account of the trust registry owning a schema.
// An unknown schema or registry yields an empty controller.
func (l *Loader) Controller(ctx context.Context, schemaID int64, height *int64) (controller string, err error) {
	var trID int64
	if height == nil {
		var cs types.CredentialSchema
		err = l.eng.GetAsOf(ctx, temporal.MustLookup(temporal.EntityCredentialSchema), schemaID, nil, &cs,
			temporal.WithColumns("id", "tr_id"))
		trID = cs.TrID
	} else {
		var cs types.CredentialSchemaHistory
		err = l.eng.GetAsOf(ctx, temporal.MustLookup(temporal.EntityCredentialSchema), schemaID, height, &cs,
			temporal.WithColumns("id", "cs_id", "tr_id"))
		trID = cs.TrID
	}
	if err != nil {
		if temporal.IsNotFound(err) {
			err = nil
		}
		return
	}

	if height == nil {
		var tr types.TrustRegistry
		err = l.eng.GetAsOf(ctx, temporal.MustLookup(temporal.EntityTrustRegistry), trID, nil, &tr,
			temporal.WithColumns("id", "controller"))
		controller = tr.Controller
	} else {
		var tr types.TrustRegistryHistory
		err = l.eng.GetAsOf(ctx, temporal.MustLookup(temporal.EntityTrustRegistry), trID, height, &tr,
			temporal.WithColumns("id", "tr_id", "controller"))
		controller = tr.Controller
	}
	if temporal.IsNotFound(err) {
		err = nil
	}
	return
}

// ZeroSeeds returns zero baselines for ids, so the first recorded slash of each counts in full.
func ZeroSeeds(ids []int64) map[int64]Baseline {
	seeds := make(map[int64]Baseline, len(ids))
	for _, id := range ids {
		seeds[id] = Baseline{}
	}
	return seeds
}

// Compute loads the events of permIDs and reconstructs their combined ledger.
func (l *Loader) Compute(ctx context.Context, schemaID int64, permIDs []int64, height *int64) (ledger Ledger, err error) {
	var controller string
	if controller, err = l.Controller(ctx, schemaID, height); err != nil {
		return
	}
	var events []Event
	if events, err = l.Load(ctx, permIDs, height); err != nil {
		return
	}
	return Reconstruct(events, Context{
		Seeds:       ZeroSeeds(permIDs),
		Controllers: map[int64]string{schemaID: controller},
	})
}
