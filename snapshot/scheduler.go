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

// Package snapshot persists global metrics snapshots on a schedule.
//
// A run is skipped when another scheduler holds the lock or when the latest snapshot
// of the same scope is younger than the configured staleness, so concurrent triggers
// from several processes write at most one row per window.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/metric"
	"github.com/CovenantSQL/trustindex/storage"
	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils"
	"github.com/CovenantSQL/trustindex/utils/log"
	"github.com/CovenantSQL/trustindex/utils/timer"
)

// Composer computes the global metrics, live or as of a height.
type Composer interface {
	ComputeGlobalMetrics(ctx context.Context, height *int64) (*types.GlobalMetrics, error)
}

// Scheduler computes and persists global metrics snapshots.
type Scheduler struct {
	cfg      conf.SnapshotConfig
	st       *storage.Store
	composer Composer
	locker   Locker
	now      func() time.Time

	stopped   int32
	stopCh    chan struct{}
	triggerCh chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler returns a scheduler, a nil locker serializes runs within this process only.
func NewScheduler(cfg conf.SnapshotConfig, st *storage.Store, composer Composer, locker Locker) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = conf.DefaultSnapshotInterval
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		cfg:       cfg,
		st:        st,
		composer:  composer,
		locker:    locker,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
	}
}

// SetClock replaces the wall clock used for staleness checks.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start restores the gauges from the last live snapshot and starts the periodic worker.
func (s *Scheduler) Start() (err error) {
	if atomic.LoadInt32(&s.stopped) == 1 {
		return ErrStopped
	}

	ctx := context.Background()
	last, err := s.Latest(ctx, nil)
	switch {
	case err == nil:
		metric.Index.Update(last)
		log.WithFields(log.Fields{
			"run":         last.RunID,
			"computed_at": last.ComputedAt,
		}).Info("restored last snapshot")
	case errors.Cause(err) == ErrNoSnapshot:
		err = nil
	default:
		return
	}

	s.wg.Add(1)
	go s.worker()
	return
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	log.Info("started snapshot worker")
	for {
		select {
		case <-s.stopCh:
			log.Info("exited snapshot worker")
			return
		case <-s.triggerCh:
		case <-time.After(s.cfg.Interval):
		}

		if atomic.LoadInt32(&s.stopped) == 1 {
			return
		}
		if _, _, err := s.RunOnce(context.Background(), nil); err != nil {
			log.WithError(err).Warning("snapshot run failed, wait for next round")
		}
	}
}

// Trigger requests a run without waiting for the interval.
func (s *Scheduler) Trigger() {
	if atomic.LoadInt32(&s.stopped) == 1 {
		return
	}
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Stop stops the worker and waits for a running snapshot to finish.
func (s *Scheduler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return ErrStopped
	}

	log.Info("stop snapshot scheduler")
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	return nil
}

// RunOnce persists a snapshot of the scope of height unless the run is skipped.
//
// created reports whether a new row was written. A skip for freshness returns the
// latest snapshot of the scope, a skip for a held lock returns no snapshot, neither
// is an error.
func (s *Scheduler) RunOnce(ctx context.Context, height *int64) (snap *types.GlobalMetricsSnapshot, created bool, err error) {
	snap, err = s.run(ctx, height)
	switch errors.Cause(err) {
	case nil:
		created = true
		metric.SnapshotRuns.WithLabelValues(metric.OutcomeSuccess).Inc()
	case ErrSnapshotTooFresh, ErrLockHeld:
		log.WithField("height", heightField(height)).WithError(err).Debug("snapshot run skipped")
		metric.SnapshotRuns.WithLabelValues(metric.OutcomeSkipped).Inc()
		err = nil
	default:
		metric.SnapshotRuns.WithLabelValues(metric.OutcomeFailed).Inc()
	}
	return
}

func (s *Scheduler) run(ctx context.Context, height *int64) (snap *types.GlobalMetricsSnapshot, err error) {
	release, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return
	}
	if !ok {
		err = ErrLockHeld
		return
	}
	defer release()

	t := timer.NewTimer()
	now := s.now()

	var last *types.GlobalMetricsSnapshot
	last, err = s.Latest(ctx, height)
	switch {
	case err == nil:
		if now.Sub(last.ComputedAt) < s.cfg.MinStaleness {
			snap = last
			err = ErrSnapshotTooFresh
			return
		}
	case errors.Cause(err) == ErrNoSnapshot:
		err = nil
	default:
		return
	}
	t.Add("latest")

	var m *types.GlobalMetrics
	if m, err = s.composer.ComputeGlobalMetrics(ctx, height); err != nil {
		err = errors.Wrap(err, "compute global metrics")
		return
	}
	t.Add("compute")

	snap = &types.GlobalMetricsSnapshot{
		RunID:         uuid.Must(uuid.NewV4()).String(),
		BlockHeight:   height,
		ComputedAt:    now,
		GlobalMetrics: *m,
	}
	if snap.Payload, err = utils.EncodeMsgPack(m); err != nil {
		err = errors.Wrap(err, "encode snapshot payload")
		snap = nil
		return
	}
	if err = s.st.Insert(ctx, snap); err != nil {
		err = errors.Wrap(err, "insert snapshot")
		snap = nil
		return
	}
	t.Add("insert")

	if height == nil {
		metric.Index.Update(snap)
	}
	log.WithFields(t.ToLogFields()).WithFields(log.Fields{
		"run":          snap.RunID,
		"height":       heightField(height),
		"participants": m.Participants,
		"weight":       m.Weight.String(),
	}).Info("snapshot persisted")
	return
}

// Latest returns the newest persisted snapshot of the scope of height.
func (s *Scheduler) Latest(ctx context.Context, height *int64) (snap *types.GlobalMetricsSnapshot, err error) {
	snap = &types.GlobalMetricsSnapshot{}
	var cols []string
	if cols, err = s.st.Columns(snap); err != nil {
		return nil, err
	}

	var (
		where = "block_height IS NULL"
		args  []interface{}
	)
	if height != nil {
		where = "block_height = ?"
		args = append(args, *height)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY computed_at DESC, id DESC LIMIT 1",
		storage.ColumnList("", cols), storage.TableGlobalMetricsSnapshots, where)
	if err = s.st.SelectOne(ctx, snap, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			err = errors.Wrapf(ErrNoSnapshot, "height %v", heightField(height))
		}
		return nil, err
	}
	return
}

// GetOrCompute returns a snapshot of the scope of height, running one when none is fresh.
// When the lock is held elsewhere the latest persisted snapshot is returned, or an
// unpersisted computation if the scope has none yet.
func (s *Scheduler) GetOrCompute(ctx context.Context, height *int64) (snap *types.GlobalMetricsSnapshot, err error) {
	if snap, _, err = s.RunOnce(ctx, height); err != nil || snap != nil {
		return
	}

	if snap, err = s.Latest(ctx, height); errors.Cause(err) != ErrNoSnapshot {
		return
	}

	var m *types.GlobalMetrics
	if m, err = s.composer.ComputeGlobalMetrics(ctx, height); err != nil {
		return nil, err
	}
	snap = &types.GlobalMetricsSnapshot{
		BlockHeight:   height,
		ComputedAt:    s.now(),
		GlobalMetrics: *m,
	}
	return
}

func heightField(height *int64) interface{} {
	if height == nil {
		return "live"
	}
	return *height
}
