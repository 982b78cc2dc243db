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
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestExitContext(t *testing.T) {
	Convey("a termination signal should cancel the context", t, func() {
		ctx, stop := ExitContext(context.Background())
		defer stop()

		So(syscall.Kill(syscall.Getpid(), syscall.SIGTERM), ShouldBeNil)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("context not cancelled by SIGTERM")
		}
	})

	Convey("stop should cancel the context", t, func() {
		ctx, stop := ExitContext(context.Background())
		stop()
		<-ctx.Done()
		So(ctx.Err(), ShouldEqual, context.Canceled)
	})
}
