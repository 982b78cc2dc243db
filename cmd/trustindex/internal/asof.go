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

// CmdAsOf is trustindex asof command entity.
var CmdAsOf = &Command{
	UsageLine:   "trustindex asof [common params] -entity name -key key [-height h]",
	Description: "Read an entity as it was at a block height",
	Long: `
AsOf reads the newest history row of an entity at or below a block height,
or the current row without -height. Composite keys are joined with '/'.
e.g.
    trustindex asof -entity permission -key 42 -height 1024
`,
}

var (
	asOfEntity string
	asOfKey    string
)

func init() {
	CmdAsOf.Run = runAsOf

	addCommonFlags(CmdAsOf)
	addHeightFlag(CmdAsOf)
	CmdAsOf.Flag.StringVar(&asOfEntity, "entity", "", "Entity name, e.g. trust_registry, credential_schema or permission")
	CmdAsOf.Flag.StringVar(&asOfKey, "key", "", "Entity key")
}

func runAsOf(cmd *Command, args []string) {
	if asOfEntity == "" || asOfKey == "" {
		ConsoleLog.Error("-entity and -key are required")
		cmd.Usage()
		return
	}

	cfg := configInit()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	row, err := stats.NewComposer(st).EntityAsOf(ctx, asOfEntity, asOfKey, heightArg())
	if err != nil {
		ConsoleLog.WithError(err).WithField("entity", asOfEntity).Error("read entity failed")
		SetExitStatus(1)
		return
	}
	printJSON(row)
}
