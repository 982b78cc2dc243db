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

package types

import (
	"database/sql/driver"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/utils"
)

// Aggregate is the materialized aggregate of a permission, schema or trust registry.
//
// Its columns are derived state: they are only written by the aggregator and can be
// dropped and rebuilt from current and history tables at any time.
type Aggregate struct {
	Weight                       Amount `db:"weight" json:"weight"`
	Participants                 int64  `db:"participants" json:"participants"`
	Issued                       int64  `db:"issued" json:"issued"`
	Verified                     int64  `db:"verified" json:"verified"`
	EcosystemSlashEvents         int64  `db:"ecosystem_slash_events" json:"ecosystem_slash_events"`
	EcosystemSlashedAmount       Amount `db:"ecosystem_slashed_amount" json:"ecosystem_slashed_amount"`
	EcosystemSlashedAmountRepaid Amount `db:"ecosystem_slashed_amount_repaid" json:"ecosystem_slashed_amount_repaid"`
	NetworkSlashEvents           int64  `db:"network_slash_events" json:"network_slash_events"`
	NetworkSlashedAmount         Amount `db:"network_slashed_amount" json:"network_slashed_amount"`
	NetworkSlashedAmountRepaid   Amount `db:"network_slashed_amount_repaid" json:"network_slashed_amount_repaid"`
}

// Add returns the field-wise sum of two aggregates.
func (a Aggregate) Add(b Aggregate) Aggregate {
	return Aggregate{
		Weight:                       a.Weight.Add(b.Weight),
		Participants:                 a.Participants + b.Participants,
		Issued:                       a.Issued + b.Issued,
		Verified:                     a.Verified + b.Verified,
		EcosystemSlashEvents:         a.EcosystemSlashEvents + b.EcosystemSlashEvents,
		EcosystemSlashedAmount:       a.EcosystemSlashedAmount.Add(b.EcosystemSlashedAmount),
		EcosystemSlashedAmountRepaid: a.EcosystemSlashedAmountRepaid.Add(b.EcosystemSlashedAmountRepaid),
		NetworkSlashEvents:           a.NetworkSlashEvents + b.NetworkSlashEvents,
		NetworkSlashedAmount:         a.NetworkSlashedAmount.Add(b.NetworkSlashedAmount),
		NetworkSlashedAmountRepaid:   a.NetworkSlashedAmountRepaid.Add(b.NetworkSlashedAmountRepaid),
	}
}

// FieldChange records the old and new value of a changed column.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// FieldChanges maps column names to their change versus the previous history row.
type FieldChanges map[string]FieldChange

// Value implements driver.Valuer.
func (c FieldChanges) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return utils.EncodeMsgPack(map[string]FieldChange(c))
}

// Scan implements sql.Scanner.
func (c *FieldChanges) Scan(src interface{}) error {
	return scanBlob(src, (*map[string]FieldChange)(c))
}

// HistoryRecord is the common part of every append-only history row.
type HistoryRecord struct {
	ID        int64        `db:"id" json:"id"`
	EventType string       `db:"event_type" json:"event_type"`
	Height    int64        `db:"height" json:"height"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Changes   FieldChanges `db:"changes" json:"changes,omitempty"`
}

// Record returns the history metadata of a row, promoted to every history type.
func (r *HistoryRecord) Record() *HistoryRecord {
	return r
}

// PermissionFields are the raw fields of a permission shared by current and history rows.
type PermissionFields struct {
	SchemaID          int64          `db:"schema_id" json:"schema_id"`
	Type              PermissionType `db:"type" json:"type"`
	Grantee           string         `db:"grantee" json:"grantee"`
	DID               string         `db:"did" json:"did"`
	ValidatorPermID   *int64         `db:"validator_perm_id" json:"validator_perm_id"`
	Created           time.Time      `db:"created" json:"created"`
	Modified          time.Time      `db:"modified" json:"modified"`
	Extended          *time.Time     `db:"extended" json:"extended"`
	Slashed           *time.Time     `db:"slashed" json:"slashed"`
	Repaid            *time.Time     `db:"repaid" json:"repaid"`
	Revoked           *time.Time     `db:"revoked" json:"revoked"`
	EffectiveFrom     *time.Time     `db:"effective_from" json:"effective_from"`
	EffectiveUntil    *time.Time     `db:"effective_until" json:"effective_until"`
	SlashedBy         string         `db:"slashed_by" json:"slashed_by"`
	RepaidBy          string         `db:"repaid_by" json:"repaid_by"`
	RevokedBy         string         `db:"revoked_by" json:"revoked_by"`
	Deposit           string         `db:"deposit" json:"deposit"`
	SlashedDeposit    string         `db:"slashed_deposit" json:"slashed_deposit"`
	RepaidDeposit     string         `db:"repaid_deposit" json:"repaid_deposit"`
	VPState           VPState        `db:"vp_state" json:"vp_state"`
	VPExp             *time.Time     `db:"vp_exp" json:"vp_exp"`
	VPLastStateChange *time.Time     `db:"vp_last_state_change" json:"vp_last_state_change"`
}

// IsRoot returns if the permission has no validator or is an ecosystem permission.
func (f *PermissionFields) IsRoot() bool {
	return f.ValidatorPermID == nil || f.Type == PermissionEcosystem
}

// Permission is the current state of a permission.
type Permission struct {
	ID int64 `db:"id" json:"id"`
	PermissionFields
	Aggregate
}

// History returns the history row snapshot of the permission, sharing no pointer with p.
func (p *Permission) History(rec HistoryRecord) *PermissionHistory {
	return &PermissionHistory{
		HistoryRecord:    rec,
		PermissionID:     p.ID,
		PermissionFields: deepcopy.Copy(p.PermissionFields).(PermissionFields),
	}
}

// PermissionHistory is a permission snapshot at one event.
type PermissionHistory struct {
	HistoryRecord
	PermissionID int64 `db:"permission_id" json:"permission_id"`
	PermissionFields
}

// AsPermission returns the permission as it was at this history row, without aggregates.
func (h *PermissionHistory) AsPermission() *Permission {
	return &Permission{
		ID:               h.PermissionID,
		PermissionFields: h.PermissionFields,
	}
}

// SessionAuthz records the permissions exercised through a session.
type SessionAuthz struct {
	IssuerPermID   *int64 `json:"issuer_perm_id,omitempty"`
	VerifierPermID *int64 `json:"verifier_perm_id,omitempty"`
}

// SessionAuthzList is the authz column of a permission session.
type SessionAuthzList []SessionAuthz

// Value implements driver.Valuer.
func (l SessionAuthzList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return utils.EncodeMsgPack([]SessionAuthz(l))
}

// Scan implements sql.Scanner.
func (l *SessionAuthzList) Scan(src interface{}) error {
	return scanBlob(src, (*[]SessionAuthz)(l))
}

// PermissionSessionFields are the raw fields of a permission session.
type PermissionSessionFields struct {
	Controller        string           `db:"controller" json:"controller"`
	AgentPermID       int64            `db:"agent_perm_id" json:"agent_perm_id"`
	WalletAgentPermID int64            `db:"wallet_agent_perm_id" json:"wallet_agent_perm_id"`
	Authz             SessionAuthzList `db:"authz" json:"authz"`
	Created           time.Time        `db:"created" json:"created"`
	Modified          time.Time        `db:"modified" json:"modified"`
}

// PermissionSession is the current state of a permission session.
type PermissionSession struct {
	ID string `db:"id" json:"id"`
	PermissionSessionFields
}

// History returns the history row snapshot of the session, sharing no authz entry with s.
func (s *PermissionSession) History(rec HistoryRecord) *PermissionSessionHistory {
	return &PermissionSessionHistory{
		HistoryRecord:           rec,
		SessionID:               s.ID,
		PermissionSessionFields: deepcopy.Copy(s.PermissionSessionFields).(PermissionSessionFields),
	}
}

// PermissionSessionHistory is a session snapshot at one event.
type PermissionSessionHistory struct {
	HistoryRecord
	SessionID string `db:"session_id" json:"session_id"`
	PermissionSessionFields
}

// CredentialSchemaFields are the raw fields of a credential schema.
type CredentialSchemaFields struct {
	TrID                                    int64          `db:"tr_id" json:"tr_id"`
	JSONSchema                              string         `db:"json_schema" json:"json_schema"`
	IssuerGrantorValidationValidityPeriod   int64          `db:"issuer_grantor_validation_validity_period" json:"issuer_grantor_validation_validity_period"`
	VerifierGrantorValidationValidityPeriod int64          `db:"verifier_grantor_validation_validity_period" json:"verifier_grantor_validation_validity_period"`
	IssuerValidationValidityPeriod          int64          `db:"issuer_validation_validity_period" json:"issuer_validation_validity_period"`
	VerifierValidationValidityPeriod        int64          `db:"verifier_validation_validity_period" json:"verifier_validation_validity_period"`
	HolderValidationValidityPeriod          int64          `db:"holder_validation_validity_period" json:"holder_validation_validity_period"`
	IssuerPermManagementMode                ManagementMode `db:"issuer_perm_management_mode" json:"issuer_perm_management_mode"`
	VerifierPermManagementMode              ManagementMode `db:"verifier_perm_management_mode" json:"verifier_perm_management_mode"`
	Deposit                                 string         `db:"deposit" json:"deposit"`
	Archived                                *time.Time     `db:"archived" json:"archived"`
	Created                                 time.Time      `db:"created" json:"created"`
	Modified                                time.Time      `db:"modified" json:"modified"`
}

// CredentialSchema is the current state of a credential schema.
type CredentialSchema struct {
	ID int64 `db:"id" json:"id"`
	CredentialSchemaFields
	Aggregate
}

// History returns the history row snapshot of the schema.
func (cs *CredentialSchema) History(rec HistoryRecord) *CredentialSchemaHistory {
	return &CredentialSchemaHistory{
		HistoryRecord:          rec,
		CsID:                   cs.ID,
		CredentialSchemaFields: cs.CredentialSchemaFields,
	}
}

// CredentialSchemaHistory is a credential schema snapshot at one event.
type CredentialSchemaHistory struct {
	HistoryRecord
	CsID int64 `db:"cs_id" json:"cs_id"`
	CredentialSchemaFields
}

// TrustRegistryFields are the raw fields of a trust registry.
type TrustRegistryFields struct {
	DID           string     `db:"did" json:"did"`
	Controller    string     `db:"controller" json:"controller"`
	Aka           string     `db:"aka" json:"aka"`
	Language      string     `db:"language" json:"language"`
	ActiveVersion int64      `db:"active_version" json:"active_version"`
	Deposit       string     `db:"deposit" json:"deposit"`
	Archived      *time.Time `db:"archived" json:"archived"`
	Created       time.Time  `db:"created" json:"created"`
	Modified      time.Time  `db:"modified" json:"modified"`
}

// TrustRegistry is the current state of a trust registry.
type TrustRegistry struct {
	ID int64 `db:"id" json:"id"`
	TrustRegistryFields
	Aggregate
}

// History returns the history row snapshot of the registry.
func (tr *TrustRegistry) History(rec HistoryRecord) *TrustRegistryHistory {
	return &TrustRegistryHistory{
		HistoryRecord:       rec,
		TrID:                tr.ID,
		TrustRegistryFields: tr.TrustRegistryFields,
	}
}

// TrustRegistryHistory is a trust registry snapshot at one event.
type TrustRegistryHistory struct {
	HistoryRecord
	TrID int64 `db:"tr_id" json:"tr_id"`
	TrustRegistryFields
}

// GovernanceFrameworkVersionFields are the raw fields of a governance framework version.
type GovernanceFrameworkVersionFields struct {
	TrID        int64      `db:"tr_id" json:"tr_id"`
	Version     int64      `db:"version" json:"version"`
	ActiveSince *time.Time `db:"active_since" json:"active_since"`
	Created     time.Time  `db:"created" json:"created"`
}

// GovernanceFrameworkVersion is the current state of a governance framework version.
type GovernanceFrameworkVersion struct {
	ID int64 `db:"id" json:"id"`
	GovernanceFrameworkVersionFields
}

// GovernanceFrameworkVersionHistory is a governance framework version snapshot.
type GovernanceFrameworkVersionHistory struct {
	HistoryRecord
	GfvID int64 `db:"gfv_id" json:"gfv_id"`
	GovernanceFrameworkVersionFields
}

// GovernanceFrameworkDocumentFields are the raw fields of a governance framework document.
type GovernanceFrameworkDocumentFields struct {
	GfvID    int64     `db:"gfv_id" json:"gfv_id"`
	Language string    `db:"language" json:"language"`
	URL      string    `db:"url" json:"url"`
	Digest   string    `db:"digest_sri" json:"digest_sri"`
	Created  time.Time `db:"created" json:"created"`
}

// GovernanceFrameworkDocument is the current state of a governance framework document.
type GovernanceFrameworkDocument struct {
	ID int64 `db:"id" json:"id"`
	GovernanceFrameworkDocumentFields
}

// GovernanceFrameworkDocumentHistory is a governance framework document snapshot.
type GovernanceFrameworkDocumentHistory struct {
	HistoryRecord
	GfdID int64 `db:"gfd_id" json:"gfd_id"`
	GovernanceFrameworkDocumentFields
}

// TrustDepositFields are the raw fields of an account trust deposit.
type TrustDepositFields struct {
	Amount         string     `db:"amount" json:"amount"`
	Share          string     `db:"share" json:"share"`
	Claimable      string     `db:"claimable" json:"claimable"`
	SlashedDeposit string     `db:"slashed_deposit" json:"slashed_deposit"`
	RepaidDeposit  string     `db:"repaid_deposit" json:"repaid_deposit"`
	SlashCount     int64      `db:"slash_count" json:"slash_count"`
	LastSlashed    *time.Time `db:"last_slashed" json:"last_slashed"`
	LastRepaid     *time.Time `db:"last_repaid" json:"last_repaid"`
}

// TrustDeposit is the current trust deposit of an account.
type TrustDeposit struct {
	Account string `db:"account" json:"account"`
	TrustDepositFields
}

// TrustDepositHistory is a trust deposit snapshot.
type TrustDepositHistory struct {
	HistoryRecord
	Account string `db:"account" json:"account"`
	TrustDepositFields
}

// ModuleParams is the current parameter set of a chain module.
type ModuleParams struct {
	Module string `db:"module" json:"module"`
	Params []byte `db:"params" json:"params"`
}

// ModuleParamsHistory is a module parameter set snapshot.
type ModuleParamsHistory struct {
	HistoryRecord
	Module string `db:"module" json:"module"`
	Params []byte `db:"params" json:"params"`
}

// DIDFields are the raw fields of a DID directory entry.
type DIDFields struct {
	Controller string     `db:"controller" json:"controller"`
	Deposit    string     `db:"deposit" json:"deposit"`
	Exp        *time.Time `db:"exp" json:"exp"`
	Created    time.Time  `db:"created" json:"created"`
	Modified   time.Time  `db:"modified" json:"modified"`
}

// DID is the current state of a DID directory entry.
type DID struct {
	DID string `db:"did" json:"did"`
	DIDFields
}

// DIDHistory is a DID directory entry snapshot.
type DIDHistory struct {
	HistoryRecord
	DID string `db:"did" json:"did"`
	DIDFields
}

// GlobalMetrics is the global rollup over all trust registries and schemas.
type GlobalMetrics struct {
	Aggregate
	ActiveTrustRegistries   int64 `db:"active_trust_registries" json:"active_trust_registries"`
	ArchivedTrustRegistries int64 `db:"archived_trust_registries" json:"archived_trust_registries"`
	ActiveSchemas           int64 `db:"active_schemas" json:"active_schemas"`
	ArchivedSchemas         int64 `db:"archived_schemas" json:"archived_schemas"`
}

// GlobalMetricsSnapshot is a persisted global metrics computation.
type GlobalMetricsSnapshot struct {
	ID          int64     `db:"id" json:"id"`
	RunID       string    `db:"run_id" json:"run_id"`
	BlockHeight *int64    `db:"block_height" json:"block_height"`
	ComputedAt  time.Time `db:"computed_at" json:"computed_at"`
	GlobalMetrics
	Payload []byte `db:"payload" json:"-"`
}

// DecodePayload decodes the opaque payload blob of the snapshot.
func (s *GlobalMetricsSnapshot) DecodePayload() (m *GlobalMetrics, err error) {
	m = &GlobalMetrics{}
	if err = utils.DecodeMsgPack(s.Payload, m); err != nil {
		err = errors.Wrap(ErrInvalidBlob, err.Error())
		m = nil
	}
	return
}

func scanBlob(src interface{}, out interface{}) (err error) {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Wrapf(ErrInvalidBlob, "unsupported source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err = utils.DecodeMsgPack(raw, out); err != nil {
		err = errors.Wrap(ErrInvalidBlob, err.Error())
	}
	return
}
