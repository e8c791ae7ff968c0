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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/itemsvc"
	"github.com/tomoncle/itemsvc/credential"
	"github.com/tomoncle/itemsvc/database"
	"github.com/tomoncle/itemsvc/metrics"
	"github.com/tomoncle/itemsvc/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type countingTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTokens) FetchToken(_ context.Context, resource string) (credential.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return credential.Token{}, &credential.AuthError{Resource: resource, Err: c.err}
	}
	return credential.Token{Value: "token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func (c *countingTokens) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingTokens) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type testServer struct {
	handler http.Handler
	tokens  *countingTokens
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, mode string) *testServer {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = database.TypeSQLite
	cfg.DBName = filepath.Join(t.TempDir(), "items")
	cfg.Mode = mode

	tokens := &countingTokens{}
	f, err := database.NewConnectionFactory(cfg, tokens, credential.DefaultResource)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	si := database.NewSchemaInitializer(f, nil)
	require.NoError(t, si.EnsureSchema(context.Background()))

	m := metrics.New()
	h := NewRouter(Options{
		Items:   itemsvc.NewItemService(f, quietLogger()),
		Health:  f,
		Schema:  si.Status(),
		Metrics: m,
		Logger:  quietLogger(),
	})
	return &testServer{handler: h, tokens: tokens, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) types.Item {
	t.Helper()
	var item types.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	return item
}

func decodeItems(t *testing.T, rec *httptest.ResponseRecorder) []types.Item {
	t.Helper()
	var items []types.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	return items
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	return msg.Message
}

func TestItemsLifecycle(t *testing.T) {
	for _, mode := range []string{database.ModePerRequest, database.ModePooled} {
		t.Run(mode, func(t *testing.T) {
			s := newTestServer(t, mode)

			rec := s.do(t, http.MethodGet, "/items", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, "[]", rec.Body.String())

			rec = s.do(t, http.MethodPost, "/items", `{"name":"Book","description":"A paper book"}`)
			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			created := decodeItem(t, rec)
			assert.NotZero(t, created.ID)
			assert.Equal(t, "Book", created.Name)
			assert.Equal(t, "A paper book", created.Description)

			rec = s.do(t, http.MethodPost, "/items", `{"name":"Pen","description":"Blue ink"}`)
			require.Equal(t, http.StatusCreated, rec.Code)
			second := decodeItem(t, rec)
			assert.NotEqual(t, created.ID, second.ID)

			rec = s.do(t, http.MethodGet, "/items", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.ElementsMatch(t, []types.Item{created, second}, decodeItems(t, rec))

			path := "/items/" + itoa(created.ID)
			rec = s.do(t, http.MethodPut, path, `{"name":"Notebook","description":"Lined pages"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, types.Item{ID: created.ID, Name: "Notebook", Description: "Lined pages"}, decodeItem(t, rec))

			rec = s.do(t, http.MethodDelete, path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, types.Item{ID: created.ID, Name: "Notebook", Description: "Lined pages"}, decodeItem(t, rec))

			rec = s.do(t, http.MethodGet, "/items", "")
			assert.Equal(t, []types.Item{second}, decodeItems(t, rec))

			rec = s.do(t, http.MethodDelete, path, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, itemsvc.MsgNotFound, decodeMessage(t, rec))
		})
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	before := s.tokens.Calls()

	for _, body := range []string{
		`{"name":"Book"}`,
		`{"description":"A paper book"}`,
		`{"name":"","description":"x"}`,
		`{"name":null,"description":"x"}`,
		`{}`,
		"",
	} {
		rec := s.do(t, http.MethodPost, "/items", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, itemsvc.MsgFieldsRequired, decodeMessage(t, rec), body)
	}
	assert.Equal(t, before, s.tokens.Calls(), "validation must not touch the database")

	rec := s.do(t, http.MethodGet, "/items", "")
	assert.Empty(t, decodeItems(t, rec))
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)

	rec := s.do(t, http.MethodPost, "/items", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, decodeMessage(t, rec))

	rec = s.do(t, http.MethodPut, "/items/1", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, decodeMessage(t, rec))

	big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `","description":"d"}`
	rec = s.do(t, http.MethodPost, "/items", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteErrors(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)

	rec := s.do(t, http.MethodPut, "/items/999", `{"name":"a","description":"b"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, itemsvc.MsgNotFound, decodeMessage(t, rec))

	rec = s.do(t, http.MethodPut, "/items/999", `{"name":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, itemsvc.MsgFieldsRequired, decodeMessage(t, rec))

	for _, id := range []string{"abc", "0", "-1", "1.5"} {
		rec = s.do(t, http.MethodPut, "/items/"+id, `{"name":"a","description":"b"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		assert.Equal(t, itemsvc.MsgInvalidID, decodeMessage(t, rec), id)

		rec = s.do(t, http.MethodDelete, "/items/"+id, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestValuesAreStoredLiterally(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	name := "x'); DROP TABLE items; --"

	rec := s.do(t, http.MethodPost, "/items", `{"name":"x'); DROP TABLE items; --","description":"? $1 %s"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeItem(t, rec)
	assert.Equal(t, name, created.Name)
	assert.Equal(t, "? $1 %s", created.Description)

	rec = s.do(t, http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []types.Item{created}, decodeItems(t, rec))
}

func TestPerRequestTokenLifecycle(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	before := s.tokens.Calls()

	s.do(t, http.MethodGet, "/items", "")
	s.do(t, http.MethodPost, "/items", `{"name":"a","description":"b"}`)
	s.do(t, http.MethodGet, "/items", "")
	assert.Equal(t, before+3, s.tokens.Calls())
}

func TestPooledTokenReuse(t *testing.T) {
	s := newTestServer(t, database.ModePooled)
	before := s.tokens.Calls()

	for i := 0; i < 5; i++ {
		s.do(t, http.MethodGet, "/items", "")
	}
	assert.Equal(t, before, s.tokens.Calls())
}

func TestAuthFailureIsOpaque(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	s.tokens.Fail(errors.New("ManagedIdentityCredential: no identity endpoint"))

	cases := []struct {
		method, path, body, msg string
	}{
		{http.MethodGet, "/items", "", msgListFailed},
		{http.MethodPost, "/items", `{"name":"a","description":"b"}`, msgCreateFailed},
		{http.MethodPut, "/items/1", `{"name":"a","description":"b"}`, msgUpdateFailed},
		{http.MethodDelete, "/items/1", "", msgDeleteFailed},
	}
	for _, tc := range cases {
		rec := s.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"message":"`+tc.msg+`"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "ManagedIdentity")
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	s.tokens.Fail(errors.New("denied"))
	rec = s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsSchemaFailure(t *testing.T) {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = database.TypeSQLite
	cfg.DBName = filepath.Join(t.TempDir(), "items")
	tokens := &countingTokens{err: errors.New("no identity")}
	f, err := database.NewConnectionFactory(cfg, tokens, credential.DefaultResource)
	require.NoError(t, err)

	si := database.NewSchemaInitializer(f, nil)
	require.Error(t, si.EnsureSchema(context.Background()))

	h := NewRouter(Options{Items: itemsvc.NewItemService(f, quietLogger()), Health: f, Schema: si.Status(), Logger: quietLogger()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no identity")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	s.do(t, http.MethodGet, "/items", "")

	rec := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `itemsvc_http_requests_total{method="GET",route="/items",status="200"} 1`)

	rec = s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, "/items", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWrongMethodOnItemRoutes(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPatch, "/items"},
		{http.MethodDelete, "/items"},
		{http.MethodPatch, "/items/1"},
		{http.MethodGet, "/items/1"},
	} {
		rec := s.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, msgMethodNotAllow, decodeMessage(t, rec), tc.method+" "+tc.path)
	}
	assert.Zero(t, s.tokens.Calls())

	rec := s.do(t, http.MethodGet, "/items/1/extra", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type deadlineService struct {
	itemsvc.ItemService
	hasDeadline bool
}

func (d *deadlineService) List(ctx context.Context) ([]types.Item, error) {
	_, d.hasDeadline = ctx.Deadline()
	return []types.Item{}, nil
}

func TestRequestTimeoutAppliesToItemRoutes(t *testing.T) {
	svc := &deadlineService{}
	h := NewRouter(Options{Items: svc, Logger: quietLogger(), RequestTimeout: time.Second})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.hasDeadline)
}

func TestWrongFieldTypeIsInvalidBody(t *testing.T) {
	s := newTestServer(t, database.ModePerRequest)
	rec := s.do(t, http.MethodPost, "/items", `{"name":123,"description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, decodeMessage(t, rec))
	assert.Zero(t, s.tokens.Calls())
}
