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

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/utils"
	"github.com/CovenantSQL/trustindex/utils/log"
)

// CmdRecompute is trustindex recompute command entity.
var CmdRecompute = &Command{
	UsageLine:   "trustindex recompute [common params] [-schema id] [-cpu-profile file] [-mem-profile file]",
	Description: "Recompute permission aggregates and registry rollups",
	Long: `
Recompute rebuilds the stored aggregates of every permission, or of the
permissions of a single credential schema, then refreshes the schema and
trust registry rollups.
e.g.
    trustindex recompute -schema 7
`,
}

var (
	recomputeSchema int64
	cpuProfile      string
	memProfile      string
)

func init() {
	CmdRecompute.Run = runRecompute

	addCommonFlags(CmdRecompute)
	CmdRecompute.Flag.Int64Var(&recomputeSchema, "schema", 0, "Credential schema id, zero for every schema")
	CmdRecompute.Flag.StringVar(&cpuProfile, "cpu-profile", "", "Path to file for CPU profiling information")
	CmdRecompute.Flag.StringVar(&memProfile, "mem-profile", "", "Path to file for memory profiling information")
}

func runRecompute(cmd *Command, args []string) {
	cfg := configInit()

	profiler, err := utils.StartProfile(cpuProfile, memProfile)
	if err != nil {
		ConsoleLog.WithError(err).Error("start profiler failed")
		SetExitStatus(1)
		return
	}
	defer profiler.Stop()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	composer := stats.NewComposer(st)
	aggregator := aggregate.NewAggregator(st, cfg.Aggregate)
	aggregator.SetRollup(composer)

	if recomputeSchema > 0 {
		var n int
		if n, err = aggregator.RecomputeSchema(ctx, recomputeSchema); err != nil {
			ConsoleLog.WithError(err).WithField("schema", recomputeSchema).Error("recompute schema failed")
			SetExitStatus(1)
			return
		}
		printJSON(map[string]interface{}{
			"schema_id":   recomputeSchema,
			"permissions": n,
		})
		return
	}

	summary, err := aggregator.RecomputeAll(ctx)
	if err != nil {
		ConsoleLog.WithError(err).Error("recompute failed")
		SetExitStatus(1)
		return
	}
	if len(summary.Failed) > 0 {
		log.WithField("failed", summary.Failed).Warning("some schemas were not recomputed")
		SetExitStatus(1)
	}
	printJSON(summary)
}
