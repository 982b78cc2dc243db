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

// CmdClassify is trustindex classify command entity.
var CmdClassify = &Command{
	UsageLine:   "trustindex classify [common params] -permission id [-height h] [-actions]",
	Description: "Classify the state of a permission",
	Long: `
Classify prints the derived state of a permission, live or as of a block
height. With -actions it prints the transitions available to the grantee
and to the validator instead.
e.g.
    trustindex classify -permission 42 -height 1024
`,
}

var (
	classifyPermission int64
	classifyActions    bool
)

func init() {
	CmdClassify.Run = runClassify

	addCommonFlags(CmdClassify)
	addHeightFlag(CmdClassify)
	CmdClassify.Flag.Int64Var(&classifyPermission, "permission", 0, "Permission id")
	CmdClassify.Flag.BoolVar(&classifyActions, "actions", false, "Print the available actions")
}

func runClassify(cmd *Command, args []string) {
	if classifyPermission <= 0 {
		ConsoleLog.Error("-permission is required")
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
	if classifyActions {
		result, err = composer.PermissionActions(ctx, classifyPermission)
	} else {
		result, err = composer.PermissionState(ctx, classifyPermission, heightArg())
	}
	if err != nil {
		ConsoleLog.WithError(err).WithField("permission", classifyPermission).Error("classify permission failed")
		SetExitStatus(1)
		return
	}
	printJSON(result)
}
