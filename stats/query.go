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

package stats

import (
	"context"
	"time"

	"github.com/CovenantSQL/trustindex/permission"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
)

// PermissionView is a permission with its derived lifecycle state.
type PermissionView struct {
	Permission  *types.Permission    `json:"permission"`
	State       types.LifecycleState `json:"state"`
	EvaluatedAt time.Time            `json:"evaluated_at"`
	Height      *int64               `json:"height,omitempty"`
}

// ActionsView lists the transitions available on a permission.
type ActionsView struct {
	PermissionID   int64                 `json:"permission_id"`
	State          types.LifecycleState  `json:"state"`
	ValidatorState *types.LifecycleState `json:"validator_state"`
	permission.Actions
}

func (c *Composer) permissionAsOf(ctx context.Context, eng *temporal.Engine, id int64, height *int64) (p *types.Permission, err error) {
	tbl := temporal.MustLookup(temporal.EntityPermission)
	if height == nil {
		p = &types.Permission{}
		if err = eng.GetAsOf(ctx, tbl, id, nil, p); err != nil {
			p = nil
		}
		return
	}
	var h types.PermissionHistory
	if err = eng.GetAsOf(ctx, tbl, id, height, &h); err != nil {
		return
	}
	return h.AsPermission(), nil
}

// PermissionState returns a permission and its lifecycle state, live or as of height.
func (c *Composer) PermissionState(ctx context.Context, id int64, height *int64) (v *PermissionView, err error) {
	var at time.Time
	if at, err = c.evaluationTime(ctx, c.st, height); err != nil {
		return
	}
	var p *types.Permission
	if p, err = c.permissionAsOf(ctx, temporal.NewEngine(c.st), id, height); err != nil {
		return
	}
	v = &PermissionView{
		Permission:  p,
		State:       permission.Classify(&p.PermissionFields, at),
		EvaluatedAt: at,
		Height:      height,
	}
	return
}

// PermissionActions returns the transitions currently available on a permission.
// A missing schema or validator is treated as unknown rather than an error.
func (c *Composer) PermissionActions(ctx context.Context, id int64) (v *ActionsView, err error) {
	now := c.now()
	eng := temporal.NewEngine(c.st)

	var p *types.Permission
	if p, err = c.permissionAsOf(ctx, eng, id, nil); err != nil {
		return
	}

	var schema *types.CredentialSchemaFields
	var cs types.CredentialSchema
	err = eng.GetAsOf(ctx, temporal.MustLookup(temporal.EntityCredentialSchema), p.SchemaID, nil, &cs)
	switch {
	case err == nil:
		schema = &cs.CredentialSchemaFields
	case temporal.IsNotFound(err):
		err = nil
	default:
		return
	}

	var validator *types.PermissionFields
	if p.ValidatorPermID != nil {
		var vp *types.Permission
		vp, err = c.permissionAsOf(ctx, eng, *p.ValidatorPermID, nil)
		switch {
		case err == nil:
			validator = &vp.PermissionFields
		case temporal.IsNotFound(err):
			err = nil
		default:
			return
		}
	}

	vs := permission.ValidatorState(validator, now)
	v = &ActionsView{
		PermissionID:   p.ID,
		State:          permission.Classify(&p.PermissionFields, now),
		ValidatorState: vs,
		Actions:        permission.AvailableActions(&p.PermissionFields, schema, vs, now),
	}
	return
}

// EntityAsOf reads any registered entity by its textual key, live or as of height.
func (c *Composer) EntityAsOf(ctx context.Context, entity string, key string, height *int64) (row interface{}, err error) {
	var tbl *temporal.EntityTable
	if tbl, err = temporal.Lookup(entity); err != nil {
		return
	}
	var k interface{}
	if k, err = tbl.ParseKey(key); err != nil {
		return
	}
	row = tbl.NewRow(height)
	if err = temporal.NewEngine(c.st).GetAsOf(ctx, tbl, k, height, row); err != nil {
		row = nil
	}
	return
}
