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

package internal

import (
	"context"

	"github.com/CovenantSQL/trustindex/snapshot"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/utils"
)

// CmdSnapshot is trustindex snapshot command entity.
var CmdSnapshot = &Command{
	UsageLine:   "trustindex snapshot [common params] [-height h]",
	Description: "Persist a global metrics snapshot",
	Long: `
Snapshot computes the global metrics live or as of a block height and
stores them, unless a fresh snapshot of the same scope already exists.
The redis lock is honoured when the config enables it.
e.g.
    trustindex snapshot -height 1024
`,
}

func init() {
	CmdSnapshot.Run = runSnapshot

	addCommonFlags(CmdSnapshot)
	addHeightFlag(CmdSnapshot)
}

func runSnapshot(cmd *Command, args []string) {
	cfg := configInit()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	var locker snapshot.Locker
	if cfg.Redis.Enabled() {
		rl, err := snapshot.NewRedisLocker(ctx, cfg.Redis, cfg.Snapshot.LockKey, cfg.Snapshot.LockTTL)
		if err != nil {
			ConsoleLog.WithError(err).Error("connect redis lock failed")
			SetExitStatus(1)
			return
		}
		defer rl.Close()
		locker = rl
	}

	s := snapshot.NewScheduler(cfg.Snapshot, st, stats.NewComposer(st), locker)
	snap, created, err := s.RunOnce(ctx, heightArg())
	if err != nil {
		ConsoleLog.WithError(err).Error("snapshot failed")
		SetExitStatus(1)
		return
	}
	if snap == nil {
		ConsoleLog.Info("snapshot lock is held by another runner, skipped")
		return
	}
	if !created {
		ConsoleLog.WithField("run", snap.RunID).Info("latest snapshot is still fresh")
	}
	printJSON(snap)
}
