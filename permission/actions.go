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

package permission

import (
	"time"

	"github.com/CovenantSQL/trustindex/types"
)

// Actions holds the transitions available to each side of a permission.
type Actions struct {
	Grantee   types.ActionSet `json:"grantee"`
	Validator types.ActionSet `json:"validator"`
}

func emptyActions() Actions {
	return Actions{
		Grantee:   types.NewActionSet(),
		Validator: types.NewActionSet(),
	}
}

// ManagementMode returns the schema mode governing a permission type.
// Holders are always validated, ecosystem roots have no mode.
func ManagementMode(t types.PermissionType, schema *types.CredentialSchemaFields) (mode types.ManagementMode, ok bool) {
	switch {
	case t == types.PermissionHolder:
		return types.ModeGrantorValidation, true
	case schema == nil:
		return
	case t.IsIssuerLike():
		return schema.IssuerPermManagementMode, true
	case t.IsVerifierLike():
		return schema.VerifierPermManagementMode, true
	}
	return
}

// AvailableActions returns the transitions available on p at now.
//
// schema provides the management modes, validatorState is the lifecycle state of the
// validator permission, nil if unknown. No matching rule yields empty sets.
func AvailableActions(
	p *types.PermissionFields, schema *types.CredentialSchemaFields, validatorState *types.LifecycleState, now time.Time,
) Actions {
	a := emptyActions()
	state := Classify(p, now)
	live := state == types.StateActive || state == types.StateFuture

	switch state {
	case types.StateSlashed:
		a.Grantee = types.NewActionSet(types.ActionPermRepay)
		return a
	case types.StateRepaid:
		return a
	}
	ended := state == types.StateRevoked || state == types.StateExpired

	if p.Type == types.PermissionEcosystem {
		if live {
			a.Grantee = types.NewActionSet(types.ActionPermExtend, types.ActionPermRevoke)
		}
		return a
	}

	mode, ok := ManagementMode(p.Type, schema)
	if !ok {
		return a
	}

	if mode == types.ModeOpen {
		if live {
			a.Grantee = types.NewActionSet(types.ActionPermExtend, types.ActionPermRevoke)
		}
		return a
	}

	// an ended permission can still be slashed by its validator.
	if ended {
		a.Validator = types.NewActionSet(types.ActionPermSlash)
		return a
	}

	var grantee, validator []types.Action
	switch p.VPState {
	case types.VPPending:
		grantee = append(grantee, types.ActionVPCancel)
		validator = append(validator, types.ActionVPSetValidated)
	case types.VPValidated:
		vpLive := p.VPExp == nil || p.VPExp.After(now)
		if vpLive && validatorState != nil && *validatorState == types.StateActive {
			grantee = append(grantee, types.ActionVPRenew)
		}
		fallthrough
	case types.VPTerminated:
		if live {
			grantee = append(grantee, types.ActionPermRevoke)
		}
	}

	if live || (state == types.StateInactive && p.VPState == types.VPPending) {
		validator = append(validator, types.ActionPermExtend, types.ActionPermRevoke)
	}
	validator = append(validator, types.ActionPermSlash)

	a.Grantee = types.NewActionSet(grantee...)
	a.Validator = types.NewActionSet(validator...)
	return a
}

// ValidatorState classifies the validator of a permission, nil for roots.
func ValidatorState(validator *types.PermissionFields, now time.Time) *types.LifecycleState {
	if validator == nil {
		return nil
	}
	s := Classify(validator, now)
	return &s
}
