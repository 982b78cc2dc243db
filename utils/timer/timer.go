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

package timer

import (
	"sync"
	"time"

	"github.com/CovenantSQL/trustindex/utils/log"
)

// Timer records named stages of a long running pass, such as a full recompute.
type Timer struct {
	sync.Mutex
	now    func() time.Time
	start  time.Time
	stages []stage
}

type stage struct {
	name string
	at   time.Time
}

// NewTimer returns a new stage timer started at the current time.
func NewTimer() *Timer {
	return newTimerWithClock(time.Now)
}

func newTimerWithClock(now func() time.Time) *Timer {
	return &Timer{
		now:   now,
		start: now(),
	}
}

// Add marks the end of the named stage. Repeated names accumulate.
func (t *Timer) Add(name string) {
	t.Lock()
	defer t.Unlock()
	t.stages = append(t.stages, stage{name: name, at: t.now()})
}

// Total returns the elapsed time since the timer was created.
func (t *Timer) Total() time.Duration {
	t.Lock()
	defer t.Unlock()
	return t.now().Sub(t.start)
}

// ToMap returns the duration of every stage plus the "total" up to the last stage.
func (t *Timer) ToMap() map[string]time.Duration {
	t.Lock()
	defer t.Unlock()

	m := make(map[string]time.Duration, len(t.stages)+1)
	prev := t.start
	for _, s := range t.stages {
		m[s.name] += s.at.Sub(prev)
		prev = s.at
	}
	if len(t.stages) > 0 {
		m["total"] = prev.Sub(t.start)
	}
	return m
}

// ToLogFields returns the stage durations as log fields.
func (t *Timer) ToLogFields() log.Fields {
	f := log.Fields{}
	for k, v := range t.ToMap() {
		f[k] = v
	}
	return f
}
