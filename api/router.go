/*
 * Copyright 2025 tomoncle.
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
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/itemsvc"
	"github.com/tomoncle/itemsvc/database"
	"github.com/tomoncle/itemsvc/metrics"
)

// Options wires the router. Items is required; the rest is optional.
type Options struct {
	Items          itemsvc.ItemService
	Health         HealthChecker
	Schema         *database.SchemaStatus
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter returns the complete HTTP handler, CORS included.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := mux.NewRouter()
	r.Use(recoveryMiddleware(logger), loggingMiddleware(logger))
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyzHandler(opts.Schema, opts.Health)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	h := NewItemHandler(opts.Items, logger)
	timeout := timeoutMiddleware(opts.RequestTimeout)
	r.Handle("/items", timeout(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	r.Handle("/items", timeout(http.HandlerFunc(h.List))).Methods(http.MethodGet)
	r.Handle("/items/{id}", timeout(http.HandlerFunc(h.Update))).Methods(http.MethodPut)
	r.Handle("/items/{id}", timeout(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: msgRouteNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: msgMethodNotAllow})
	})

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
