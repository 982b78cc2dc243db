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

// Package test provides an in-memory store and an event applier that writes current
// rows together with their history rows, the way the ingestion layer does.
package test

import (
	"context"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
)

// Epoch is the block time of height zero in generated histories.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewStore opens a bootstrapped private in-memory sqlite3 store.
func NewStore() (st *storage.Store, err error) {
	dsn := "file:" + uuid.Must(uuid.NewV4()).String() + "?mode=memory&cache=shared"
	if st, err = storage.OpenSQLite(dsn, 10*time.Second); err != nil {
		return
	}
	if err = st.Bootstrap(context.Background()); err != nil {
		st.Close()
		st = nil
	}
	return
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}

// Builder applies events to current tables and appends the matching history rows.
type Builder struct {
	ctx    context.Context
	st     *storage.Store
	eng    *temporal.Engine
	height int64
	seq    int64
}

// NewBuilder returns a builder writing to st starting at height 1.
func NewBuilder(st *storage.Store) *Builder {
	return &Builder{
		ctx:    context.Background(),
		st:     st,
		eng:    temporal.NewEngine(st),
		height: 1,
	}
}

// At sets the block height of the following events.
func (b *Builder) At(height int64) *Builder {
	b.height = height
	return b
}

// Height returns the current block height.
func (b *Builder) Height() int64 {
	return b.height
}

// BlockTime returns the block time of a height, one minute per block.
func BlockTime(height int64) time.Time {
	return Epoch.Add(time.Duration(height) * time.Minute)
}

func (b *Builder) record(event string) types.HistoryRecord {
	b.seq++
	return types.HistoryRecord{
		EventType: event,
		Height:    b.height,
		CreatedAt: BlockTime(b.height).Add(time.Duration(b.seq) * time.Millisecond),
	}
}

func (b *Builder) upsert(row interface{}) (err error) {
	var n int64
	if n, err = b.st.Update(b.ctx, row); err != nil {
		return
	}
	if n == 0 {
		err = b.st.Insert(b.ctx, row)
	}
	return
}

func (b *Builder) apply(entity string, current interface{}, history temporal.HistoryRow) (err error) {
	if err = b.upsert(current); err != nil {
		return errors.Wrapf(err, "save %s", entity)
	}
	return b.eng.AppendHistory(b.ctx, temporal.MustLookup(entity), history)
}

// SaveRegistry writes a trust registry event.
func (b *Builder) SaveRegistry(tr *types.TrustRegistry, event string) error {
	return b.apply(temporal.EntityTrustRegistry, tr, tr.History(b.record(event)))
}

// SaveSchema writes a credential schema event.
func (b *Builder) SaveSchema(cs *types.CredentialSchema, event string) error {
	return b.apply(temporal.EntityCredentialSchema, cs, cs.History(b.record(event)))
}

// SavePermission writes a permission event.
func (b *Builder) SavePermission(p *types.Permission, event string) error {
	return b.apply(temporal.EntityPermission, p, p.History(b.record(event)))
}

// SaveSession writes a permission session event.
func (b *Builder) SaveSession(s *types.PermissionSession) error {
	return b.apply(temporal.EntityPermissionSession, s, s.History(b.record(types.EventCreateOrUpdatePermissionSession)))
}

// Registry creates an active trust registry.
func (b *Builder) Registry(id int64, controller string) (tr *types.TrustRegistry, err error) {
	at := BlockTime(b.height)
	tr = &types.TrustRegistry{
		ID: id,
		TrustRegistryFields: types.TrustRegistryFields{
			DID:           "did:example:tr" + uuid.Must(uuid.NewV4()).String()[:8],
			Controller:    controller,
			Language:      "en",
			ActiveVersion: 1,
			Deposit:       "0",
			Created:       at,
			Modified:      at,
		},
	}
	err = b.SaveRegistry(tr, types.EventCreateTrustRegistry)
	return
}

// Schema creates an active credential schema of a registry.
func (b *Builder) Schema(id, trID int64, issuerMode, verifierMode types.ManagementMode) (cs *types.CredentialSchema, err error) {
	at := BlockTime(b.height)
	cs = &types.CredentialSchema{
		ID: id,
		CredentialSchemaFields: types.CredentialSchemaFields{
			TrID:                       trID,
			JSONSchema:                 "{}",
			IssuerPermManagementMode:   issuerMode,
			VerifierPermManagementMode: verifierMode,
			Deposit:                    "0",
			Created:                    at,
			Modified:                   at,
		},
	}
	err = b.SaveSchema(cs, types.EventCreateCredentialSchema)
	return
}

// Permission creates a permission effective from the current block onwards.
func (b *Builder) Permission(
	id, schemaID int64, typ types.PermissionType, validator *int64, grantee, deposit string,
) (p *types.Permission, err error) {
	at := BlockTime(b.height)
	p = &types.Permission{
		ID: id,
		PermissionFields: types.PermissionFields{
			SchemaID:        schemaID,
			Type:            typ,
			Grantee:         grantee,
			ValidatorPermID: validator,
			Created:         at,
			Modified:        at,
			EffectiveFrom:   Time(at),
			Deposit:         deposit,
			SlashedDeposit:  "0",
			RepaidDeposit:   "0",
			VPState:         types.VPValidated,
		},
	}
	event := types.EventCreatePermission
	if validator == nil {
		event = types.EventCreateRootPermission
	}
	err = b.SavePermission(p, event)
	return
}

// Slash raises the cumulative slashed deposit of a permission by amount.
func (b *Builder) Slash(p *types.Permission, amount int64, by string) error {
	slashed, err := types.ParseAmount(p.SlashedDeposit)
	if err != nil {
		return err
	}
	at := BlockTime(b.height)
	p.SlashedDeposit = slashed.Add(types.NewAmount(amount)).String()
	p.Slashed = Time(at)
	p.SlashedBy = by
	p.Modified = at
	return b.SavePermission(p, types.EventSlashPermissionTrustDeposit)
}

// Repay raises the cumulative repaid deposit of a permission by amount.
func (b *Builder) Repay(p *types.Permission, amount int64, by string) error {
	repaid, err := types.ParseAmount(p.RepaidDeposit)
	if err != nil {
		return err
	}
	at := BlockTime(b.height)
	p.RepaidDeposit = repaid.Add(types.NewAmount(amount)).String()
	p.Repaid = Time(at)
	p.RepaidBy = by
	p.Modified = at
	return b.SavePermission(p, types.EventRepayPermissionSlashedTrustDeposit)
}

// Revoke revokes a permission at the current block.
func (b *Builder) Revoke(p *types.Permission, by string) error {
	at := BlockTime(b.height)
	p.Revoked = Time(at)
	p.RevokedBy = by
	p.Modified = at
	return b.SavePermission(p, types.EventRevokePermission)
}

// Session records a session exercising the given issuer and verifier permissions.
func (b *Builder) Session(id string, agent int64, authz ...types.SessionAuthz) (s *types.PermissionSession, err error) {
	at := BlockTime(b.height)
	s = &types.PermissionSession{
		ID: id,
		PermissionSessionFields: types.PermissionSessionFields{
			Controller:        "controller-" + id,
			AgentPermID:       agent,
			WalletAgentPermID: agent,
			Authz:             types.SessionAuthzList(authz),
			Created:           at,
			Modified:          at,
		},
	}
	err = b.SaveSession(s)
	return
}

// Issue returns an authz entry of an issuance through perm.
func Issue(perm int64) types.SessionAuthz {
	return types.SessionAuthz{IssuerPermID: Int64(perm)}
}

// Verify returns an authz entry of a verification through perm.
func Verify(perm int64) types.SessionAuthz {
	return types.SessionAuthz{VerifierPermID: Int64(perm)}
}
