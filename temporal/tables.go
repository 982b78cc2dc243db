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

package temporal

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/types"
)

// EntityTable pairs the current and history tables of a temporally tracked entity.
type EntityTable struct {
	Name       string
	Current    string
	History    string
	Key        string
	HistoryKey string
	IntKey     bool

	newCurrent func() interface{}
	newHistory func() interface{}
}

// Entity table names.
const (
	EntityTrustRegistry               = "trust_registry"
	EntityCredentialSchema            = "credential_schema"
	EntityPermission                  = "permission"
	EntityPermissionSession           = "permission_session"
	EntityTrustDeposit                = "trust_deposit"
	EntityModuleParams                = "module_params"
	EntityDID                         = "did"
	EntityGovernanceFrameworkVersion  = "governance_framework_version"
	EntityGovernanceFrameworkDocument = "governance_framework_document"
)

var registry = map[string]*EntityTable{
	EntityTrustRegistry: {
		Name: EntityTrustRegistry, Current: storage.TableTrustRegistries, History: storage.TableTrustRegistryHistory,
		Key: "id", HistoryKey: "tr_id", IntKey: true,
		newCurrent: func() interface{} { return &types.TrustRegistry{} },
		newHistory: func() interface{} { return &types.TrustRegistryHistory{} },
	},
	EntityCredentialSchema: {
		Name: EntityCredentialSchema, Current: storage.TableCredentialSchemas, History: storage.TableCredentialSchemaHist,
		Key: "id", HistoryKey: "cs_id", IntKey: true,
		newCurrent: func() interface{} { return &types.CredentialSchema{} },
		newHistory: func() interface{} { return &types.CredentialSchemaHistory{} },
	},
	EntityPermission: {
		Name: EntityPermission, Current: storage.TablePermissions, History: storage.TablePermissionHistory,
		Key: "id", HistoryKey: "permission_id", IntKey: true,
		newCurrent: func() interface{} { return &types.Permission{} },
		newHistory: func() interface{} { return &types.PermissionHistory{} },
	},
	EntityPermissionSession: {
		Name: EntityPermissionSession, Current: storage.TablePermissionSessions, History: storage.TablePermissionSessionHist,
		Key: "id", HistoryKey: "session_id",
		newCurrent: func() interface{} { return &types.PermissionSession{} },
		newHistory: func() interface{} { return &types.PermissionSessionHistory{} },
	},
	EntityTrustDeposit: {
		Name: EntityTrustDeposit, Current: storage.TableTrustDeposits, History: storage.TableTrustDepositHistory,
		Key: "account", HistoryKey: "account",
		newCurrent: func() interface{} { return &types.TrustDeposit{} },
		newHistory: func() interface{} { return &types.TrustDepositHistory{} },
	},
	EntityModuleParams: {
		Name: EntityModuleParams, Current: storage.TableModuleParams, History: storage.TableModuleParamsHistory,
		Key: "module", HistoryKey: "module",
		newCurrent: func() interface{} { return &types.ModuleParams{} },
		newHistory: func() interface{} { return &types.ModuleParamsHistory{} },
	},
	EntityDID: {
		Name: EntityDID, Current: storage.TableDIDs, History: storage.TableDIDHistory,
		Key: "did", HistoryKey: "did",
		newCurrent: func() interface{} { return &types.DID{} },
		newHistory: func() interface{} { return &types.DIDHistory{} },
	},
	EntityGovernanceFrameworkVersion: {
		Name: EntityGovernanceFrameworkVersion, Current: storage.TableGFVersions, History: storage.TableGFVersionHistory,
		Key: "id", HistoryKey: "gfv_id", IntKey: true,
		newCurrent: func() interface{} { return &types.GovernanceFrameworkVersion{} },
		newHistory: func() interface{} { return &types.GovernanceFrameworkVersionHistory{} },
	},
	EntityGovernanceFrameworkDocument: {
		Name: EntityGovernanceFrameworkDocument, Current: storage.TableGFDocuments, History: storage.TableGFDocumentHistory,
		Key: "id", HistoryKey: "gfd_id", IntKey: true,
		newCurrent: func() interface{} { return &types.GovernanceFrameworkDocument{} },
		newHistory: func() interface{} { return &types.GovernanceFrameworkDocumentHistory{} },
	},
}

// Lookup returns the entity table registered with name.
func Lookup(name string) (*EntityTable, error) {
	t, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntity, "entity %s", name)
	}
	return t, nil
}

// MustLookup returns the entity table registered with name or panics.
func MustLookup(name string) *EntityTable {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the sorted names of all entity tables.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRow returns an empty row of the current table, or of the history table if height is set.
func (t *EntityTable) NewRow(height *int64) interface{} {
	if height == nil {
		return t.newCurrent()
	}
	return t.newHistory()
}

// ParseKey converts a textual key to the key type of the entity.
func (t *EntityTable) ParseKey(s string) (interface{}, error) {
	if !t.IntKey {
		if s == "" {
			return nil, errors.Wrap(ErrInvalidKey, "empty key")
		}
		return s, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "key %q of %s", s, t.Name)
	}
	return v, nil
}
