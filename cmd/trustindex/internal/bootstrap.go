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

	"github.com/CovenantSQL/trustindex/utils"
)

// CmdBootstrap is trustindex bootstrap command entity.
var CmdBootstrap = &Command{
	UsageLine:   "trustindex bootstrap [common params]",
	Description: "Create the index tables if missing",
	Long: `
Bootstrap creates the registry, history and snapshot tables of the index
database. It is meant for development databases, production schemas are
owned by the indexer.
e.g.
    trustindex bootstrap -db sqlite3:/tmp/index.db
`,
}

func init() {
	CmdBootstrap.Run = runBootstrap

	addCommonFlags(CmdBootstrap)
}

func runBootstrap(cmd *Command, args []string) {
	cfg := configInit()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	if err := st.Bootstrap(ctx); err != nil {
		ConsoleLog.WithError(err).Error("bootstrap storage failed")
		SetExitStatus(1)
		return
	}
	ConsoleLog.Info("storage bootstrapped")
}
