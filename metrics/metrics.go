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

package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomoncle/itemsvc/credential"
)

const namespace = "itemsvc"

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics owns a private registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	tokenFetches *prometheus.CounterVec
	connections  *prometheus.CounterVec
	connDuration *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		tokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_fetches_total",
				Help:      "Credential token requests sent to the identity provider",
			},
			[]string{"result"},
		),
		connections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_connections_opened_total",
				Help:      "Database connections handed out to requests",
			},
			[]string{"mode", "result"},
		),
		connDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_connection_open_seconds",
				Help:      "Time spent authenticating and opening a database connection",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"mode"},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.tokenFetches,
		m.connections,
		m.connDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveConnection implements database.Observer.
func (m *Metrics) ObserveConnection(mode string, d time.Duration, err error) {
	m.connections.WithLabelValues(mode, result(err)).Inc()
	m.connDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// InstrumentTokens counts every fetch made through p.
func (m *Metrics) InstrumentTokens(p credential.TokenProvider) credential.TokenProvider {
	return credential.TokenProviderFunc(func(ctx context.Context, resource string) (credential.Token, error) {
		tok, err := p.FetchToken(ctx, resource)
		m.tokenFetches.WithLabelValues(result(err)).Inc()
		return tok, err
	})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
