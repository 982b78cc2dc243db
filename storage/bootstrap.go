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
)

// The relational schema is owned by the ingestion layer, the statements below only
// create a compatible development and test database.

const aggregateColumns = `
	weight TEXT NOT NULL DEFAULT '0',
	participants BIGINT NOT NULL DEFAULT 0,
	issued BIGINT NOT NULL DEFAULT 0,
	verified BIGINT NOT NULL DEFAULT 0,
	ecosystem_slash_events BIGINT NOT NULL DEFAULT 0,
	ecosystem_slashed_amount TEXT NOT NULL DEFAULT '0',
	ecosystem_slashed_amount_repaid TEXT NOT NULL DEFAULT '0',
	network_slash_events BIGINT NOT NULL DEFAULT 0,
	network_slashed_amount TEXT NOT NULL DEFAULT '0',
	network_slashed_amount_repaid TEXT NOT NULL DEFAULT '0'`

const historyColumns = `
	id {{serial}},
	event_type TEXT NOT NULL,
	height BIGINT NOT NULL,
	created_at {{ts}} NOT NULL,
	changes {{blob}}`

const permissionColumns = `
	schema_id BIGINT NOT NULL,
	type TEXT NOT NULL,
	grantee TEXT NOT NULL DEFAULT '',
	did TEXT NOT NULL DEFAULT '',
	validator_perm_id BIGINT,
	created {{ts}} NOT NULL,
	modified {{ts}} NOT NULL,
	extended {{ts}},
	slashed {{ts}},
	repaid {{ts}},
	revoked {{ts}},
	effective_from {{ts}},
	effective_until {{ts}},
	slashed_by TEXT NOT NULL DEFAULT '',
	repaid_by TEXT NOT NULL DEFAULT '',
	revoked_by TEXT NOT NULL DEFAULT '',
	deposit TEXT NOT NULL DEFAULT '0',
	slashed_deposit TEXT NOT NULL DEFAULT '0',
	repaid_deposit TEXT NOT NULL DEFAULT '0',
	vp_state TEXT NOT NULL DEFAULT 'UNSPECIFIED',
	vp_exp {{ts}},
	vp_last_state_change {{ts}}`

const sessionColumns = `
	controller TEXT NOT NULL DEFAULT '',
	agent_perm_id BIGINT NOT NULL DEFAULT 0,
	wallet_agent_perm_id BIGINT NOT NULL DEFAULT 0,
	authz {{blob}},
	created {{ts}} NOT NULL,
	modified {{ts}} NOT NULL`

const schemaColumns = `
	tr_id BIGINT NOT NULL,
	json_schema TEXT NOT NULL DEFAULT '',
	issuer_grantor_validation_validity_period BIGINT NOT NULL DEFAULT 0,
	verifier_grantor_validation_validity_period BIGINT NOT NULL DEFAULT 0,
	issuer_validation_validity_period BIGINT NOT NULL DEFAULT 0,
	verifier_validation_validity_period BIGINT NOT NULL DEFAULT 0,
	holder_validation_validity_period BIGINT NOT NULL DEFAULT 0,
	issuer_perm_management_mode TEXT NOT NULL,
	verifier_perm_management_mode TEXT NOT NULL,
	deposit TEXT NOT NULL DEFAULT '0',
	archived {{ts}},
	created {{ts}} NOT NULL,
	modified {{ts}} NOT NULL`

const registryColumns = `
	did TEXT NOT NULL,
	controller TEXT NOT NULL,
	aka TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	active_version BIGINT NOT NULL DEFAULT 0,
	deposit TEXT NOT NULL DEFAULT '0',
	archived {{ts}},
	created {{ts}} NOT NULL,
	modified {{ts}} NOT NULL`

const gfvColumns = `
	tr_id BIGINT NOT NULL,
	version BIGINT NOT NULL,
	active_since {{ts}},
	created {{ts}} NOT NULL`

const gfdColumns = `
	gfv_id BIGINT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	digest_sri TEXT NOT NULL DEFAULT '',
	created {{ts}} NOT NULL`

const depositColumns = `
	amount TEXT NOT NULL DEFAULT '0',
	share TEXT NOT NULL DEFAULT '0',
	claimable TEXT NOT NULL DEFAULT '0',
	slashed_deposit TEXT NOT NULL DEFAULT '0',
	repaid_deposit TEXT NOT NULL DEFAULT '0',
	slash_count BIGINT NOT NULL DEFAULT 0,
	last_slashed {{ts}},
	last_repaid {{ts}}`

const didColumns = `
	controller TEXT NOT NULL DEFAULT '',
	deposit TEXT NOT NULL DEFAULT '0',
	exp {{ts}},
	created {{ts}} NOT NULL,
	modified {{ts}} NOT NULL`

const snapshotColumns = `
	id {{serial}},
	run_id TEXT NOT NULL,
	block_height BIGINT,
	computed_at {{ts}} NOT NULL,
	active_trust_registries BIGINT NOT NULL DEFAULT 0,
	archived_trust_registries BIGINT NOT NULL DEFAULT 0,
	active_schemas BIGINT NOT NULL DEFAULT 0,
	archived_schemas BIGINT NOT NULL DEFAULT 0,
	payload {{blob}},`

type ddlTable struct {
	name    string
	columns []string
	indexes []string
}

var ddlTables = []ddlTable{
	{TableTrustRegistries, []string{"id BIGINT PRIMARY KEY,", registryColumns + ",", aggregateColumns}, nil},
	{TableTrustRegistryHistory, []string{historyColumns + ",", "tr_id BIGINT NOT NULL,", registryColumns}, []string{"tr_id, height"}},
	{TableCredentialSchemas, []string{"id BIGINT PRIMARY KEY,", schemaColumns + ",", aggregateColumns}, []string{"tr_id"}},
	{TableCredentialSchemaHist, []string{historyColumns + ",", "cs_id BIGINT NOT NULL,", schemaColumns}, []string{"cs_id, height"}},
	{TablePermissions, []string{"id BIGINT PRIMARY KEY,", permissionColumns + ",", aggregateColumns}, []string{"schema_id", "validator_perm_id"}},
	{TablePermissionHistory, []string{historyColumns + ",", "permission_id BIGINT NOT NULL,", permissionColumns}, []string{"permission_id, height", "schema_id, height"}},
	{TablePermissionSessions, []string{"id TEXT PRIMARY KEY,", sessionColumns}, nil},
	{TablePermissionSessionHist, []string{historyColumns + ",", "session_id TEXT NOT NULL,", sessionColumns}, []string{"session_id, height"}},
	{TableGFVersions, []string{"id BIGINT PRIMARY KEY,", gfvColumns}, nil},
	{TableGFVersionHistory, []string{historyColumns + ",", "gfv_id BIGINT NOT NULL,", gfvColumns}, []string{"gfv_id, height"}},
	{TableGFDocuments, []string{"id BIGINT PRIMARY KEY,", gfdColumns}, nil},
	{TableGFDocumentHistory, []string{historyColumns + ",", "gfd_id BIGINT NOT NULL,", gfdColumns}, []string{"gfd_id, height"}},
	{TableTrustDeposits, []string{"account TEXT PRIMARY KEY,", depositColumns}, nil},
	{TableTrustDepositHistory, []string{historyColumns + ",", "account TEXT NOT NULL,", depositColumns}, []string{"account, height"}},
	{TableModuleParams, []string{"module TEXT PRIMARY KEY,", "params {{blob}}"}, nil},
	{TableModuleParamsHistory, []string{historyColumns + ",", "module TEXT NOT NULL,", "params {{blob}}"}, []string{"module, height"}},
	{TableDIDs, []string{"did TEXT PRIMARY KEY,", didColumns}, nil},
	{TableDIDHistory, []string{historyColumns + ",", "did TEXT NOT NULL,", didColumns}, []string{"did, height"}},
	{TableGlobalMetricsSnapshots, []string{snapshotColumns, aggregateColumns}, []string{"block_height, computed_at"}},
}

func dialectReplacer(d Dialect) *strings.Replacer {
	if d == DialectPostgres {
		return strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMPTZ",
			"{{blob}}", "BYTEA",
		)
	}
	return strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "TIMESTAMP",
		"{{blob}}", "BLOB",
	)
}

// DDL returns the bootstrap statements of the dialect.
func DDL(d Dialect) (stmts []string) {
	r := dialectReplacer(d)
	for _, t := range ddlTables {
		stmts = append(stmts, r.Replace(fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s\n)", t.name, strings.Join(t.columns, ""))))
		for i, idx := range t.indexes {
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%d ON %s (%s)", t.name, i, t.name, idx))
		}
	}
	return
}

// Bootstrap creates the tables if absent.
func (s *Store) Bootstrap(ctx context.Context) (err error) {
	for _, stmt := range DDL(s.dialect) {
		if _, err = s.Exec(ctx, stmt); err != nil {
			err = errors.Wrapf(err, "bootstrap statement: %s", stmt)
			return
		}
	}
	return
}
