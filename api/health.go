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
	"context"
	"net/http"

	"github.com/tomoncle/itemsvc/database"
)

// HealthChecker probes the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *database.HealthStatus
}

type readinessResponse struct {
	Status   string                 `json:"status"`
	Schema   database.SchemaState   `json:"schema"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyzHandler reports unavailable until the schema has been created and
// while the database cannot be reached.
func readyzHandler(schema *database.SchemaStatus, db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readinessResponse{Status: "ready"}
		if schema != nil {
			resp.Schema = schema.State()
			if !resp.Schema.Ready {
				resp.Status = "unavailable"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		if db != nil {
			resp.Database = db.HealthCheck(r.Context())
			if !resp.Database.Healthy {
				resp.Status = "unavailable"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
