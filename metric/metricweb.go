/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metric

import (
	"context"
	"expvar"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	mw "github.com/zserge/metric"

	"github.com/CovenantSQL/trustindex/utils/log"
)

// MB is 1024 * 1024 Bytes.
const MB = 1024 * 1024

// SimpleMetricMap is map from metric name to MetricFamily.
type SimpleMetricMap map[string]*dto.MetricFamily

var crucialMetricNameMap = map[string]string{
	"trustindex_global_participants":               "participants",
	"trustindex_global_weight":                     "weight",
	"trustindex_global_active_schemas":             "active_schemas",
	"trustindex_global_active_trust_registries":    "active_trust_registries",
	"trustindex_global_snapshot_age_seconds":       "snapshot_age",
	"trustindex_snapshot_runs_total":               "snapshot_runs",
	"trustindex_aggregate_schema_recomputes_total": "schema_recomputes",
}

// FilterCrucialMetrics picks the metrics shown on the debug page, renamed to short names.
func (mfm SimpleMetricMap) FilterCrucialMetrics() (ret map[string]float64) {
	ret = make(map[string]float64)
	for _, v := range mfm {
		newName, ok := crucialMetricNameMap[v.GetName()]
		if !ok || len(v.GetMetric()) == 0 {
			continue
		}
		var metricVal float64
		switch v.GetType() {
		case dto.MetricType_GAUGE:
			metricVal = v.GetMetric()[0].GetGauge().GetValue()
		case dto.MetricType_COUNTER:
			for _, m := range v.GetMetric() {
				metricVal += m.GetCounter().GetValue()
			}
		case dto.MetricType_UNTYPED:
			metricVal = v.GetMetric()[0].GetUntyped().GetValue()
		default:
			continue
		}
		ret[newName] = metricVal
	}
	log.Debugf("crucial metric added: %v", ret)

	return
}

func collect(g prometheus.Gatherer) (err error) {
	mfs, err := g.Gather()
	if err != nil {
		err = errors.Wrap(err, "gathering index metrics failed")
		return
	}
	mm := make(SimpleMetricMap, len(mfs))
	for _, mf := range mfs {
		mm[mf.GetName()] = mf
	}
	for k, v := range mm.FilterCrucialMetrics() {
		var val expvar.Var
		if val = expvar.Get(k); val == nil {
			expvar.Publish(k, mw.NewGauge("1h1m"))
			val = expvar.Get(k)
		}
		val.(mw.Metric).Add(v)
	}

	return
}

var publishRuntime sync.Once

// MetricWeb serves the /debug/metrics page and the prometheus /metrics endpoint.
type MetricWeb struct {
	server *http.Server
	addr   net.Addr
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// InitMetricWeb initializes the /debug/metrics web.
func InitMetricWeb(metricWeb string) (w *MetricWeb, err error) {
	// Some Go internal metrics
	publishRuntime.Do(func() {
		expvar.Publish("go:numgoroutine", mw.NewGauge("1m1s", "5m5s", "1h1m"))
		expvar.Publish("go:numcgocall", mw.NewGauge("1m1s", "5m5s", "1h1m"))
		expvar.Publish("go:alloc", mw.NewGauge("1m1s", "5m5s", "1h1m"))
		expvar.Publish("go:alloctotal", mw.NewGauge("1m1s", "5m5s", "1h1m"))
	})

	if err = collect(prometheus.DefaultGatherer); err != nil {
		return
	}

	var l net.Listener
	if l, err = net.Listen("tcp", metricWeb); err != nil {
		err = errors.Wrapf(err, "listen metric web on %s", metricWeb)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", mw.Handler(mw.Exposed))
	mux.Handle("/metrics", promhttp.Handler())

	w = &MetricWeb{
		server: &http.Server{Handler: mux},
		addr:   l.Addr(),
		stopCh: make(chan struct{}),
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.tick(time.Minute, func() { _ = collect(prometheus.DefaultGatherer) })
	}()
	go func() {
		defer w.wg.Done()
		w.tick(5*time.Second, func() {
			m := &runtime.MemStats{}
			runtime.ReadMemStats(m)
			expvar.Get("go:numgoroutine").(mw.Metric).Add(float64(runtime.NumGoroutine()))
			expvar.Get("go:numcgocall").(mw.Metric).Add(float64(runtime.NumCgoCall()))
			expvar.Get("go:alloc").(mw.Metric).Add(float64(m.Alloc) / float64(MB))
			expvar.Get("go:alloctotal").(mw.Metric).Add(float64(m.TotalAlloc) / float64(MB))
		})
	}()
	go func() {
		if err := w.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metric web stopped")
		}
	}()

	log.WithField("addr", w.addr.String()).Info("metric web started")
	return
}

func (w *MetricWeb) tick(d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Addr returns the listening address.
func (w *MetricWeb) Addr() string {
	return w.addr.String()
}

// Stop shuts the metric web down.
func (w *MetricWeb) Stop(ctx context.Context) error {
	select {
	case <-w.stopCh:
		return nil
	default:
		close(w.stopCh)
	}
	w.wg.Wait()
	return w.server.Shutdown(ctx)
}
