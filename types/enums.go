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
	"sort"
)

// PermissionType defines the role granted by a permission.
type PermissionType string

const (
	// PermissionEcosystem is the root permission of a credential schema ecosystem.
	PermissionEcosystem PermissionType = "ECOSYSTEM"
	// PermissionIssuerGrantor may validate issuer permissions.
	PermissionIssuerGrantor PermissionType = "ISSUER_GRANTOR"
	// PermissionVerifierGrantor may validate verifier permissions.
	PermissionVerifierGrantor PermissionType = "VERIFIER_GRANTOR"
	// PermissionIssuer may issue credentials of the schema.
	PermissionIssuer PermissionType = "ISSUER"
	// PermissionVerifier may verify credentials of the schema.
	PermissionVerifier PermissionType = "VERIFIER"
	// PermissionHolder may hold credentials of the schema.
	PermissionHolder PermissionType = "HOLDER"
)

// IsIssuerLike returns if the permission type is managed by the schema issuer mode.
func (t PermissionType) IsIssuerLike() bool {
	return t == PermissionIssuer || t == PermissionIssuerGrantor
}

// IsVerifierLike returns if the permission type is managed by the schema verifier mode.
func (t PermissionType) IsVerifierLike() bool {
	return t == PermissionVerifier || t == PermissionVerifierGrantor
}

// VPState defines the validation process state of a permission.
type VPState string

const (
	// VPUnspecified means no validation process was ever started.
	VPUnspecified VPState = "UNSPECIFIED"
	// VPPending means the validation process waits for the validator.
	VPPending VPState = "PENDING"
	// VPValidated means the validator accepted the grantee.
	VPValidated VPState = "VALIDATED"
	// VPTerminated means the validation process was terminated.
	VPTerminated VPState = "TERMINATED"
)

// ManagementMode defines how permissions of a role are granted in a credential schema.
type ManagementMode string

const (
	// ModeOpen lets anybody self-create the permission.
	ModeOpen ManagementMode = "OPEN"
	// ModeGrantorValidation requires a grantor to validate the permission.
	ModeGrantorValidation ManagementMode = "GRANTOR_VALIDATION"
	// ModeEcosystem requires the ecosystem to validate the permission.
	ModeEcosystem ManagementMode = "ECOSYSTEM"
)

// LifecycleState is the derived lifecycle state of a permission.
type LifecycleState string

const (
	// StateRepaid means the slashed deposit was repaid.
	StateRepaid LifecycleState = "REPAID"
	// StateSlashed means the deposit was slashed.
	StateSlashed LifecycleState = "SLASHED"
	// StateRevoked means the permission was revoked.
	StateRevoked LifecycleState = "REVOKED"
	// StateExpired means the effective period is over.
	StateExpired LifecycleState = "EXPIRED"
	// StateActive means the permission is in its effective period.
	StateActive LifecycleState = "ACTIVE"
	// StateFuture means the effective period has not started yet.
	StateFuture LifecycleState = "FUTURE"
	// StateInactive means the permission has no effective period at all.
	StateInactive LifecycleState = "INACTIVE"
)

// Action defines a lifecycle transition available on a permission.
type Action string

const (
	// ActionPermRevoke revokes the permission.
	ActionPermRevoke Action = "PERM_REVOKE"
	// ActionPermExtend extends the effective period.
	ActionPermExtend Action = "PERM_EXTEND"
	// ActionPermSlash slashes the permission deposit.
	ActionPermSlash Action = "PERM_SLASH"
	// ActionPermRepay repays a slashed deposit.
	ActionPermRepay Action = "PERM_REPAY"
	// ActionVPCancel cancels a pending validation process.
	ActionVPCancel Action = "VP_CANCEL"
	// ActionVPRenew renews a validated permission.
	ActionVPRenew Action = "VP_RENEW"
	// ActionVPSetValidated validates a pending permission.
	ActionVPSetValidated Action = "VP_SET_VALIDATED"
)

// ActionSet is a sorted, de-duplicated list of actions.
type ActionSet []Action

// NewActionSet builds a sorted action set.
func NewActionSet(actions ...Action) ActionSet {
	seen := make(map[Action]struct{}, len(actions))
	s := make(ActionSet, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		s = append(s, a)
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}

// Contains returns if action exists in set.
func (s ActionSet) Contains(a Action) bool {
	for _, v := range s {
		if v == a {
			return true
		}
	}
	return false
}

// History event types emitted by the ingestion layer.
const (
	EventCreateRootPermission               = "CREATE_ROOT_PERMISSION"
	EventCreatePermission                   = "CREATE_PERMISSION"
	EventStartPermissionVP                  = "START_PERMISSION_VP"
	EventSetPermissionVPToValidated         = "SET_PERMISSION_VP_TO_VALIDATED"
	EventRenewPermissionVP                  = "RENEW_PERMISSION_VP"
	EventCancelPermissionVPLastRequest      = "CANCEL_PERMISSION_VP_LAST_REQUEST"
	EventExtendPermission                   = "EXTEND_PERMISSION"
	EventRevokePermission                   = "REVOKE_PERMISSION"
	EventSlashPermissionTrustDeposit        = "SLASH_PERMISSION_TRUST_DEPOSIT"
	EventRepayPermissionSlashedTrustDeposit = "REPAY_PERMISSION_SLASHED_TRUST_DEPOSIT"
	EventCreateOrUpdatePermissionSession    = "CREATE_OR_UPDATE_PERMISSION_SESSION"
	EventCreateTrustRegistry                = "CREATE_TRUST_REGISTRY"
	EventUpdateTrustRegistry                = "UPDATE_TRUST_REGISTRY"
	EventArchiveTrustRegistry               = "ARCHIVE_TRUST_REGISTRY"
	EventCreateCredentialSchema             = "CREATE_CREDENTIAL_SCHEMA"
	EventUpdateCredentialSchema             = "UPDATE_CREDENTIAL_SCHEMA"
	EventArchiveCredentialSchema            = "ARCHIVE_CREDENTIAL_SCHEMA"
)
