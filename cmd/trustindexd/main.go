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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/api"
	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/metric"
	"github.com/CovenantSQL/trustindex/snapshot"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/utils"
	"github.com/CovenantSQL/trustindex/utils/log"
)

const name = "trustindexd"

var (
	version = "unknown"
)

var (
	configFile  string
	logLevel    string
	bootstrap   bool
	recompute   bool
	showVersion bool
	cpuProfile  string
	memProfile  string
)

func init() {
	flag.StringVar(&configFile, "config", "~/.trustindex/config.yaml", "config file path")
	flag.StringVar(&logLevel, "log-level", "", "service log level, overrides the config")
	flag.BoolVar(&bootstrap, "bootstrap", false, "create the tables if missing, for development only")
	flag.BoolVar(&recompute, "recompute", false, "recompute every permission aggregate before serving")
	flag.BoolVar(&showVersion, "version", false, "show version information and exit")
	flag.StringVar(&cpuProfile, "cpu-profile", "", "path to file for CPU profiling information")
	flag.StringVar(&memProfile, "mem-profile", "", "path to file for memory profiling information")
}

func main() {
	flag.Parse()
	if showVersion {
		fmt.Printf("%v %v %v %v %v\n",
			name, version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		os.Exit(0)
	}

	configFile = utils.HomeDirExpand(configFile)
	flag.Visit(func(f *flag.Flag) {
		log.Infof("args %#v : %s", f.Name, f.Value)
	})

	cfg, err := conf.LoadConfig(configFile)
	if err != nil {
		log.WithError(err).Fatal("load config failed")
		return
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	log.SetStringLevel(logLevel, log.InfoLevel)

	profiler, err := utils.StartProfile(cpuProfile, memProfile)
	if err != nil {
		log.WithError(err).Fatal("start profiler failed")
		return
	}
	defer profiler.Stop()

	ctx, stop := utils.ExitContext(context.Background())
	defer stop()

	st, err := storage.Open(cfg.Database.URL, cfg.Database.QueryTimeout)
	if err != nil {
		log.WithError(err).Fatal("open storage failed")
		return
	}
	defer st.Close()
	if cfg.Database.MaxOpenConns > 0 {
		st.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err = st.Ping(ctx); err != nil {
		log.WithError(err).Fatal("ping storage failed")
		return
	}
	if bootstrap {
		if err = st.Bootstrap(ctx); err != nil {
			log.WithError(err).Fatal("bootstrap storage failed")
			return
		}
		log.Info("storage bootstrapped")
	}

	composer := stats.NewComposer(st)
	aggregator := aggregate.NewAggregator(st, cfg.Aggregate)
	aggregator.SetRollup(composer)

	if recompute {
		var summary *aggregate.Summary
		if summary, err = aggregator.RecomputeAll(ctx); err != nil {
			log.WithError(err).Fatal("initial recompute failed")
			return
		}
		log.WithFields(log.Fields{
			"run":    summary.RunID,
			"failed": summary.Failed,
		}).Info("initial recompute finished")
	}

	var locker snapshot.Locker
	if cfg.Redis.Enabled() {
		var rl *snapshot.RedisLocker
		if rl, err = snapshot.NewRedisLocker(ctx, cfg.Redis, cfg.Snapshot.LockKey, cfg.Snapshot.LockTTL); err != nil {
			log.WithError(err).Fatal("connect redis lock failed")
			return
		}
		defer rl.Close()
		locker = rl
	}
	scheduler := snapshot.NewScheduler(cfg.Snapshot, st, composer, locker)

	var mw *metric.MetricWeb
	if cfg.Metric.ListenAddr != "" {
		if mw, err = metric.InitMetricWeb(cfg.Metric.ListenAddr); err != nil {
			log.WithError(err).Fatal("start metric web failed")
			return
		}
	}

	service := &api.Service{
		ListenAddr: cfg.API.ListenAddr,
		Composer:   composer,
		Aggregator: aggregator,
		Scheduler:  scheduler,
	}
	if cfg.API.ListenAddr != "" {
		if err = service.Start(); err != nil {
			log.WithError(err).Fatal("start api failed")
			return
		}
	}

	if err = scheduler.Start(); err != nil {
		log.WithError(err).Fatal("start snapshot scheduler failed")
		return
	}
	scheduler.Trigger()

	log.Info("started trustindexd")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = service.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("stop api failed")
	}
	if err = scheduler.Stop(); err != nil {
		log.WithError(err).Error("stop snapshot scheduler failed")
	}
	if mw != nil {
		if err = mw.Stop(shutdownCtx); err != nil {
			log.WithError(err).Error("stop metric web failed")
		}
	}

	log.Info("trustindexd stopped")
}
