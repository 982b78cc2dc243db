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

package snapshot

import (
	"github.com/pkg/errors"
)

var (
	// ErrSnapshotTooFresh defines a run skipped because the latest snapshot of its scope is recent enough.
	ErrSnapshotTooFresh = errors.New("latest snapshot is too fresh")
	// ErrLockHeld defines a run skipped because another scheduler holds the lock.
	ErrLockHeld = errors.New("snapshot lock held by another scheduler")
	// ErrStopped defines an operation on a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")
	// ErrNoSnapshot defines a scope without any persisted snapshot.
	ErrNoSnapshot = errors.New("no snapshot found")
)
