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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/itemsvc"
	"github.com/tomoncle/itemsvc/types"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidBody    = "Invalid request body"
	msgCreateFailed   = "Error creating item"
	msgListFailed     = "Error fetching items"
	msgUpdateFailed   = "Error updating item"
	msgDeleteFailed   = "Error deleting item"
	msgInternalError  = "Internal server error"
	msgRouteNotFound  = "Not found"
	msgMethodNotAllow = "Method not allowed"
)

type messageResponse struct {
	Message string `json:"message"`
}

// ItemHandler serves the /items routes.
type ItemHandler struct {
	items  itemsvc.ItemService
	logger logrus.FieldLogger
}

func NewItemHandler(items itemsvc.ItemService, logger logrus.FieldLogger) *ItemHandler {
	return &ItemHandler{items: items, logger: logger}
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	item, err := h.items.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err, msgCreateFailed)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		h.writeError(w, err, msgListFailed)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	if err := itemsvc.ValidateInput(in); err != nil {
		h.writeError(w, err, msgUpdateFailed)
		return
	}
	id, err := itemsvc.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, msgUpdateFailed)
		return
	}
	item, err := h.items.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err, msgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := itemsvc.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, msgDeleteFailed)
		return
	}
	item, err := h.items.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, err, msgDeleteFailed)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// decodeInput reads the JSON body. An empty body decodes to an empty input
// so that validation reports the missing fields.
func (h *ItemHandler) decodeInput(w http.ResponseWriter, r *http.Request) (types.ItemInput, bool) {
	var in types.ItemInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WithField("error", err.Error()).Debug("Rejected request body")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgInvalidBody})
		return in, false
	}
	return in, true
}

// writeError maps service errors to responses. Internal details are logged
// by the service and never reach the client.
func (h *ItemHandler) writeError(w http.ResponseWriter, err error, failMsg string) {
	var validationErr *itemsvc.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: validationErr.Message})
	case errors.Is(err, itemsvc.ErrNotFound):
		writeJSON(w, http.StatusNotFound, messageResponse{Message: itemsvc.MsgNotFound})
	default:
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: failMsg})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
