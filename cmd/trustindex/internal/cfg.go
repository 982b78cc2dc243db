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
	"encoding/json"
	"fmt"
	"os"

	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/utils"
	"github.com/CovenantSQL/trustindex/utils/log"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	height     int64
)

func addCommonFlags(cmd *Command) {
	cmd.Flag.StringVar(&configFile, "config", "~/.trustindex/config.yaml", "Config file for trustindex")
	cmd.Flag.StringVar(&dbURL, "db", "", "Database url overriding the config, e.g. sqlite3:/var/lib/trustindex/index.db")
	cmd.Flag.StringVar(&logLevel, "log-level", "", "Log level, overrides the config")
}

func addHeightFlag(cmd *Command) {
	cmd.Flag.Int64Var(&height, "height", -1, "Block height to read as of, negative for the live state")
}

// heightArg returns the height flag as an optional height.
func heightArg() *int64 {
	if height < 0 {
		return nil
	}
	h := height
	return &h
}

// configInit loads the config, a database url flag alone is enough to run.
func configInit() (cfg *conf.Config) {
	var err error
	configFile = utils.HomeDirExpand(configFile)

	switch {
	case dbURL != "" && !utils.Exist(configFile):
		cfg = conf.DefaultConfig(dbURL)
	default:
		if cfg, err = conf.LoadConfig(configFile); err != nil {
			ConsoleLog.WithError(err).Error("load config failed")
			SetExitStatus(1)
			Exit()
		}
		if dbURL != "" {
			cfg.Database.URL = dbURL
		}
	}

	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	log.SetStringLevel(logLevel, log.WarnLevel)
	return
}

func openStore(ctx context.Context, cfg *conf.Config) (st *storage.Store) {
	var err error
	if st, err = storage.Open(cfg.Database.URL, cfg.Database.QueryTimeout); err != nil {
		ConsoleLog.WithError(err).Error("open storage failed")
		SetExitStatus(1)
		Exit()
	}
	if cfg.Database.MaxOpenConns > 0 {
		st.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err = st.Ping(ctx); err != nil {
		ConsoleLog.WithError(err).Error("ping storage failed")
		st.Close()
		SetExitStatus(1)
		Exit()
	}
	return
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		ConsoleLog.WithError(err).Error("encode result failed")
		SetExitStatus(1)
		return
	}
	fmt.Fprintln(os.Stdout, string(out))
}
