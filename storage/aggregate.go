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

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/types"
)

// AggregateColumns are the materialized aggregate columns shared by permissions,
// credential schemas and trust registries.
var AggregateColumns = []string{
	"weight",
	"participants",
	"issued",
	"verified",
	"ecosystem_slash_events",
	"ecosystem_slashed_amount",
	"ecosystem_slashed_amount_repaid",
	"network_slash_events",
	"network_slashed_amount",
	"network_slashed_amount_repaid",
}

// AggregateArgs returns the values of a in AggregateColumns order.
func AggregateArgs(a *types.Aggregate) []interface{} {
	return []interface{}{
		a.Weight.String(),
		a.Participants,
		a.Issued,
		a.Verified,
		a.EcosystemSlashEvents,
		a.EcosystemSlashedAmount.String(),
		a.EcosystemSlashedAmountRepaid.String(),
		a.NetworkSlashEvents,
		a.NetworkSlashedAmount.String(),
		a.NetworkSlashedAmountRepaid.String(),
	}
}

var aggregateTables = map[string]bool{
	TablePermissions:       true,
	TableCredentialSchemas: true,
	TableTrustRegistries:   true,
}

// UpdateAggregate writes only the aggregate columns of the row id of table.
func UpdateAggregate(ctx context.Context, q Querier, table string, id int64, a *types.Aggregate) (err error) {
	if !aggregateTables[table] {
		return errors.Wrapf(ErrUnknownTable, "table %s has no aggregate", table)
	}

	sets := make([]string, len(AggregateColumns))
	for i, c := range AggregateColumns {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	args := append(AggregateArgs(a), id)
	if _, err = q.Exec(ctx, query, args...); err != nil {
		err = errors.Wrapf(err, "update aggregate of %s %d", table, id)
	}
	return
}
