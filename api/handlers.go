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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/trustindex/aggregate"
	"github.com/CovenantSQL/trustindex/snapshot"
	"github.com/CovenantSQL/trustindex/stats"
	"github.com/CovenantSQL/trustindex/temporal"
	"github.com/CovenantSQL/trustindex/types"
	"github.com/CovenantSQL/trustindex/utils/log"
)

func sendResponse(code int, success bool, msg interface{}, data interface{}, rw http.ResponseWriter) {
	msgStr := "ok"
	if msg != nil {
		msgStr = fmt.Sprint(msg)
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(map[string]interface{}{
		"status":  msgStr,
		"success": success,
		"data":    data,
	})
}

func sendError(err error, rw http.ResponseWriter) {
	switch cause := errors.Cause(err); {
	case err == nil:
		sendResponse(http.StatusOK, true, nil, nil, rw)
	case temporal.IsNotFound(err), cause == snapshot.ErrNoSnapshot:
		sendResponse(http.StatusNotFound, false, err, nil, rw)
	case cause == ErrBadRequest, cause == temporal.ErrInvalidKey, cause == temporal.ErrUnknownEntity:
		sendResponse(http.StatusBadRequest, false, err, nil, rw)
	case cause == types.ErrInvalidAmount:
		sendResponse(http.StatusUnprocessableEntity, false, err, nil, rw)
	case cause == ErrNotConfigured:
		sendResponse(http.StatusServiceUnavailable, false, err, nil, rw)
	default:
		log.WithError(err).Warning("api: request failed")
		sendResponse(http.StatusInternalServerError, false, err, nil, rw)
	}
}

func getIntFromVars(field string, r *http.Request) (value int64, err error) {
	valueStr := mux.Vars(r)[field]
	if valueStr == "" {
		err = ErrBadRequest
		return
	}
	if value, err = strconv.ParseInt(valueStr, 10, 64); err != nil {
		err = errors.Wrapf(ErrBadRequest, "%s: %v", field, err)
	}
	return
}

// getHeight returns the optional height query parameter, nil for live reads.
func getHeight(r *http.Request) (height *int64, err error) {
	raw := r.URL.Query().Get("height")
	if raw == "" {
		return
	}
	var h int64
	if h, err = strconv.ParseInt(raw, 10, 64); err != nil || h < 0 {
		err = errors.Wrapf(ErrBadRequest, "height %q", raw)
		return
	}
	return &h, nil
}

type indexAPI struct {
	composer   *stats.Composer
	aggregator *aggregate.Aggregator
	scheduler  *snapshot.Scheduler
}

func (a *indexAPI) context(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), apiTimeout)
}

func (a *indexAPI) GetPermissionState(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	height, err := getHeight(r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.composer == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	v, err := a.composer.PermissionState(ctx, id, height)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, v, rw)
}

func (a *indexAPI) GetPermissionActions(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.composer == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	v, err := a.composer.PermissionActions(ctx, id)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, v, rw)
}

func (a *indexAPI) RefreshPermission(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.aggregator == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	agg, err := a.aggregator.RefreshPermission(ctx, id)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, agg, rw)
}

func (a *indexAPI) GetEntityAsOf(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	height, err := getHeight(r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.composer == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	row, err := a.composer.EntityAsOf(ctx, vars["entity"], vars["key"], height)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, row, rw)
}

func (a *indexAPI) GetSchemaStats(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	height, err := getHeight(r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.composer == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	s, err := a.composer.ComputeSchemaStats(ctx, id, height)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, s, rw)
}

func (a *indexAPI) RecomputeSchema(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.aggregator == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	n, err := a.aggregator.RecomputeSchema(r.Context(), id)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, map[string]interface{}{
		"schema_id":   id,
		"permissions": n,
	}, rw)
}

func (a *indexAPI) GetRegistryStats(rw http.ResponseWriter, r *http.Request) {
	id, err := getIntFromVars("id", r)
	if err != nil {
		sendError(err, rw)
		return
	}
	height, err := getHeight(r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.composer == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	s, err := a.composer.ComputeTrustRegistryStats(ctx, id, height)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, s, rw)
}

func (a *indexAPI) GetGlobalMetrics(rw http.ResponseWriter, r *http.Request) {
	height, err := getHeight(r)
	if err != nil {
		sendError(err, rw)
		return
	}
	if a.scheduler == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	ctx, cancel := a.context(r)
	defer cancel()
	snap, err := a.scheduler.GetOrCompute(ctx, height)
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, snap, rw)
}

// RecomputeAll runs without the request timeout, a full rebuild may take minutes.
func (a *indexAPI) RecomputeAll(rw http.ResponseWriter, r *http.Request) {
	if a.aggregator == nil {
		sendError(ErrNotConfigured, rw)
		return
	}

	summary, err := a.aggregator.RecomputeAll(r.Context())
	if err != nil {
		sendError(err, rw)
		return
	}
	sendResponse(http.StatusOK, true, nil, summary, rw)
}
