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

// Package api serves the read API of the index over http.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/snapshot"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/utils/log"
)

var (
	apiTimeout = time.Second * 10
)

// Service configs the API service.
type Service struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Composer   *stats.Composer
	Aggregator *aggregate.Aggregator
	Scheduler  *snapshot.Scheduler

	server   *http.Server
	listener net.Listener
}

// Handler returns the router of the API with CORS enabled.
func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		sendResponse(http.StatusOK, true, nil, nil, rw)
	}).Methods("GET")

	api := &indexAPI{
		composer:   s.Composer,
		aggregator: s.Aggregator,
		scheduler:  s.Scheduler,
	}
	v1Router := router.PathPrefix("/v1").Subrouter()
	v1Router.HandleFunc("/permission/{id:[0-9]+}/state", api.GetPermissionState).Methods("GET")
	v1Router.HandleFunc("/permission/{id:[0-9]+}/actions", api.GetPermissionActions).Methods("GET")
	v1Router.HandleFunc("/permission/{id:[0-9]+}/refresh", api.RefreshPermission).Methods("POST")
	v1Router.HandleFunc("/asof/{entity}/{key}", api.GetEntityAsOf).Methods("GET")
	v1Router.HandleFunc("/schema/{id:[0-9]+}/stats", api.GetSchemaStats).Methods("GET")
	v1Router.HandleFunc("/schema/{id:[0-9]+}/recompute", api.RecomputeSchema).Methods("POST")
	v1Router.HandleFunc("/registry/{id:[0-9]+}/stats", api.GetRegistryStats).Methods("GET")
	v1Router.HandleFunc("/metrics/global", api.GetGlobalMetrics).Methods("GET")
	v1Router.HandleFunc("/recompute", api.RecomputeAll).Methods("POST")

	return handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
	)(router)
}

// Start binds the listen address and serves in the background.
func (s *Service) Start() (err error) {
	if s.listener, err = net.Listen("tcp", s.ListenAddr); err != nil {
		err = errors.Wrapf(err, "listen api on %s", s.ListenAddr)
		return
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = apiTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = apiTimeout * 10
	}

	s.server = &http.Server{
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  apiTimeout,
		Handler:      s.Handler(),
	}

	log.WithField("addr", s.listener.Addr().String()).Info("api: start http server")
	go func(server *http.Server, l net.Listener) {
		if err := server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("api: http server serve error")
		}
	}(s.server, s.listener)
	return
}

// Addr returns the bound address, empty before Start.
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the http server down.
func (s *Service) Stop(ctx context.Context) (err error) {
	if s.server == nil {
		return
	}
	log.Warning("api: shutdown http server")
	err = s.server.Shutdown(ctx)
	s.server = nil
	return
}
