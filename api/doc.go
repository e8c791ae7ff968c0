// Package api exposes the item service over HTTP. It provides the gorilla/mux
// routes for /items, the JSON error mapping, liveness and readiness probes,
// the Prometheus endpoint, and the recovery, access log, metrics, timeout and
// CORS middleware wrapped around them.
package api
