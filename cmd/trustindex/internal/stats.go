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

	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/utils"
)

// CmdStats is trustindex stats command entity.
var CmdStats = &Command{
	UsageLine:   "trustindex stats [common params] [-schema id | -registry id | -global] [-height h]",
	Description: "Compute schema, trust registry or global statistics",
	Long: `
Stats computes the statistics of a credential schema, a trust registry or
the whole index, live or as of a block height, without persisting them.
e.g.
    trustindex stats -schema 7 -height 1024
    trustindex stats -global
`,
}

var (
	statsSchema   int64
	statsRegistry int64
	statsGlobal   bool
)

func init() {
	CmdStats.Run = runStats

	addCommonFlags(CmdStats)
	addHeightFlag(CmdStats)
	CmdStats.Flag.Int64Var(&statsSchema, "schema", 0, "Credential schema id")
	CmdStats.Flag.Int64Var(&statsRegistry, "registry", 0, "Trust registry id")
	CmdStats.Flag.BoolVar(&statsGlobal, "global", false, "Compute the global metrics")
}

func runStats(cmd *Command, args []string) {
	if (statsSchema > 0 && statsRegistry > 0) || (statsSchema <= 0 && statsRegistry <= 0 && !statsGlobal) {
		ConsoleLog.Error("exactly one of -schema, -registry or -global is required")
		cmd.Usage()
		return
	}

	cfg := configInit()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	var (
		composer = stats.NewComposer(st)
		result   interface{}
		err      error
	)
	switch {
	case statsSchema > 0:
		result, err = composer.ComputeSchemaStats(ctx, statsSchema, heightArg())
	case statsRegistry > 0:
		result, err = composer.ComputeTrustRegistryStats(ctx, statsRegistry, heightArg())
	default:
		result, err = composer.ComputeGlobalMetrics(ctx, heightArg())
	}
	if err != nil {
		ConsoleLog.WithError(err).Error("compute stats failed")
		SetExitStatus(1)
		return
	}
	printJSON(result)
}
