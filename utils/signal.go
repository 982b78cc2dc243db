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

package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/CovenantSQL/trustindex/utils/log"
)

// ExitContext returns a context cancelled on SIGINT or SIGTERM, SIGHUP, SIGTTIN and
// SIGTTOU are ignored. The returned stop function releases the signal handler.
func ExitContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGHUP, syscall.SIGTTIN, syscall.SIGTTOU)

	go func() {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig.String()).Info("received exit signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	stop = func() {
		signal.Stop(signalCh)
		cancel()
	}
	return
}
