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
	"reflect"

	"github.com/pkg/errors"
	gorp "gopkg.in/gorp.v2"

	"github.com/CovenantSQL/trustindex/types"
)

// Table names of the current and history tables.
const (
	TableTrustRegistries        = "trust_registries"
	TableTrustRegistryHistory   = "trust_registry_history"
	TableCredentialSchemas      = "credential_schemas"
	TableCredentialSchemaHist   = "credential_schema_history"
	TablePermissions            = "permissions"
	TablePermissionHistory      = "permission_history"
	TablePermissionSessions     = "permission_sessions"
	TablePermissionSessionHist  = "permission_session_history"
	TableGFVersions             = "governance_framework_versions"
	TableGFVersionHistory       = "governance_framework_version_history"
	TableGFDocuments            = "governance_framework_documents"
	TableGFDocumentHistory      = "governance_framework_document_history"
	TableTrustDeposits          = "trust_deposits"
	TableTrustDepositHistory    = "trust_deposit_history"
	TableModuleParams           = "module_params"
	TableModuleParamsHistory    = "module_params_history"
	TableDIDs                   = "dids"
	TableDIDHistory             = "did_history"
	TableGlobalMetricsSnapshots = "global_metrics_snapshots"
)

type regTable struct {
	name       string
	object     interface{}
	pk         string
	isAutoIncr bool
}

var tables = []regTable{
	{TableTrustRegistries, types.TrustRegistry{}, "ID", false},
	{TableTrustRegistryHistory, types.TrustRegistryHistory{}, "ID", true},
	{TableCredentialSchemas, types.CredentialSchema{}, "ID", false},
	{TableCredentialSchemaHist, types.CredentialSchemaHistory{}, "ID", true},
	{TablePermissions, types.Permission{}, "ID", false},
	{TablePermissionHistory, types.PermissionHistory{}, "ID", true},
	{TablePermissionSessions, types.PermissionSession{}, "ID", false},
	{TablePermissionSessionHist, types.PermissionSessionHistory{}, "ID", true},
	{TableGFVersions, types.GovernanceFrameworkVersion{}, "ID", false},
	{TableGFVersionHistory, types.GovernanceFrameworkVersionHistory{}, "ID", true},
	{TableGFDocuments, types.GovernanceFrameworkDocument{}, "ID", false},
	{TableGFDocumentHistory, types.GovernanceFrameworkDocumentHistory{}, "ID", true},
	{TableTrustDeposits, types.TrustDeposit{}, "Account", false},
	{TableTrustDepositHistory, types.TrustDepositHistory{}, "ID", true},
	{TableModuleParams, types.ModuleParams{}, "Module", false},
	{TableModuleParamsHistory, types.ModuleParamsHistory{}, "ID", true},
	{TableDIDs, types.DID{}, "DID", false},
	{TableDIDHistory, types.DIDHistory{}, "ID", true},
	{TableGlobalMetricsSnapshots, types.GlobalMetricsSnapshot{}, "ID", true},
}

func addTables(dbMap *gorp.DbMap) {
	for _, t := range tables {
		dbMap.AddTableWithName(t.object, t.name).SetKeys(t.isAutoIncr, t.pk)
	}
}

func columnsOf(dbMap *gorp.DbMap, row interface{}) (cols []string, err error) {
	t := reflect.TypeOf(row)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	if t == nil {
		err = errors.Wrap(ErrUnknownTable, "nil row")
		return
	}

	var tm *gorp.TableMap
	if tm, err = dbMap.TableFor(t, false); err != nil {
		err = errors.Wrapf(ErrUnknownTable, "type %s", t.Name())
		return
	}

	cols = make([]string, 0, len(tm.Columns))
	for _, c := range tm.Columns {
		if !c.Transient && c.ColumnName != "-" {
			cols = append(cols, c.ColumnName)
		}
	}
	return
}

// TableName returns the registered table name of row.
func (s *Store) TableName(row interface{}) (string, error) {
	t := reflect.TypeOf(row)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	if t == nil {
		return "", errors.Wrap(ErrUnknownTable, "nil row")
	}
	tm, err := s.dbMap.TableFor(t, false)
	if err != nil {
		return "", errors.Wrapf(ErrUnknownTable, "type %s", t.Name())
	}
	return tm.TableName, nil
}
