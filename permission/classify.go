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

// Package permission derives the lifecycle state of a permission and the lifecycle
// transitions available to its grantee and to its validator.
//
// Both are pure functions of the raw permission fields, so they apply equally to a
// current row and to a historical snapshot.
package permission

import (
	"time"

	"github.com/CovenantSQL/trustindex/types"
)

// Classify returns the lifecycle state of p at now, first match wins:
// repaid, slashed, revoked, expired, active or future by effective_from, inactive.
func Classify(p *types.PermissionFields, now time.Time) types.LifecycleState {
	switch {
	case p.Repaid != nil:
		return types.StateRepaid
	case p.Slashed != nil:
		return types.StateSlashed
	case p.Revoked != nil && !p.Revoked.After(now):
		return types.StateRevoked
	case p.EffectiveUntil != nil && p.EffectiveUntil.Before(now):
		return types.StateExpired
	case p.EffectiveFrom != nil:
		if !p.EffectiveFrom.After(now) {
			return types.StateActive
		}
		return types.StateFuture
	default:
		return types.StateInactive
	}
}

// IsActive returns if p is classified ACTIVE at now.
func IsActive(p *types.PermissionFields, now time.Time) bool {
	return Classify(p, now) == types.StateActive
}
