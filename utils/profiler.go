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
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/utils/log"
)

// Profiler writes CPU and heap profiles of a long running pass, such as a full recompute.
type Profiler struct {
	cpu *os.File
	mem *os.File
}

// StartProfile starts the CPU profile and arms the heap profile, empty paths are skipped.
func StartProfile(cpuprofile, memprofile string) (p *Profiler, err error) {
	p = &Profiler{}
	if cpuprofile != "" {
		if p.cpu, err = os.Create(cpuprofile); err != nil {
			err = errors.Wrapf(err, "create cpu profile %s", cpuprofile)
			return nil, err
		}
		if err = pprof.StartCPUProfile(p.cpu); err != nil {
			p.cpu.Close()
			err = errors.Wrap(err, "start cpu profile")
			return nil, err
		}
		log.WithField("file", cpuprofile).Info("writing CPU profiling to file")
	}

	if memprofile != "" {
		if p.mem, err = os.Create(memprofile); err != nil {
			p.Stop()
			err = errors.Wrapf(err, "create memory profile %s", memprofile)
			return nil, err
		}
		log.WithField("file", memprofile).Info("writing memory profiling to file")
		runtime.MemProfileRate = 4096
	}
	return
}

// Stop flushes and closes the profiles, it is safe to call more than once.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	if p.cpu != nil {
		pprof.StopCPUProfile()
		p.cpu.Close()
		p.cpu = nil
		log.Info("CPU profiling stopped")
	}
	if p.mem != nil {
		if err := pprof.WriteHeapProfile(p.mem); err != nil {
			log.WithError(err).Warning("write heap profile failed")
		}
		p.mem.Close()
		p.mem = nil
		log.Info("memory profiling stopped")
	}
}
