package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consumption-unit/internal/address"
	"consumption-unit/internal/consumption"
	"consumption-unit/internal/contract"
	"consumption-unit/internal/domain"
	"consumption-unit/internal/observability"
	"consumption-unit/internal/storage/memory"
	"consumption-unit/internal/stream"
)

const instantiateJSON = `{
	"name": "consumption unit",
	"symbol": "cu",
	"collection_info_extension": {
		"settlement_token": {"cw20": "settlement"},
		"native_token": {"native": "untrn"},
		"price_oracle": "price_oracle"
	}
}`

func mintJSON(id, owner string) string {
	return `{"mint":{"token_id":"` + id + `","owner":"` + owner + `","extension":{
		"consumption_value":"5000","nominal_quantity":"120","nominal_currency":"kWh",
		"commitment_tier":1,"state":"reflected","floor_price":"1","hashes":[]}}}`
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	*httptest.Server
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	metrics := observability.NewMetrics("test")
	c := consumption.New(memory.NewKVStore(), address.Loose{})
	hub := stream.NewHub(nil, discard, metrics)
	router := contract.NewRouter(c, memory.NewEventStore(), hub, metrics, discard)
	srv := httptest.NewServer(NewHandler(router, c, hub, metrics, discard))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, metrics: metrics}
}

func (s *testServer) post(t *testing.T, path, sender, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if sender != "" {
		req.Header.Set(SenderHeader, sender)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func (s *testServer) instantiate(t *testing.T) {
	t.Helper()
	resp, body := s.post(t, "/v1/instantiate", "admin", instantiateJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func errorKind(t *testing.T, body []byte) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Kind
}

func TestHandler_ExecuteAndQuery(t *testing.T) {
	s := newTestServer(t)
	s.instantiate(t)

	resp, body := s.post(t, "/v1/execute", "admin", mintJSON("cu-1", "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out consumption.Response
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, []domain.Attribute{{Key: "action", Value: consumption.EventMint}}, out.Attributes)
	require.Len(t, out.Events, 1)
	owner, _ := out.Events[0].Attr("owner")
	assert.Equal(t, "alice", owner)

	resp, body = s.post(t, "/v1/query", "", `{"owner_of":{"token_id":"cu-1"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"owner":"alice","approvals":[]}`, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, body = s.post(t, "/v1/execute", "alice",
		`{"update_nft_info":{"token_id":"cu-1","extension":{"update_pool":{"new_commitment_tier_id":4}}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.Reprice)
	assert.Equal(t, consumption.RepriceRequest{TokenID: "cu-1", Tier: 4}, *out.Reprice)

	// instantiate, execute and query routes, all 2xx
	assert.Equal(t, 3, testutil.CollectAndCount(s.metrics.HTTPRequestDuration))
}

func TestHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.instantiate(t)

	resp, body := s.post(t, "/v1/execute", "admin", mintJSON("cu-1", "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = s.post(t, "/v1/execute", "admin", `{"select":{"token_id":"cu-1"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	tests := []struct {
		name     string
		path     string
		sender   string
		body     string
		wantCode int
		wantKind string
	}{
		{"missing sender", "/v1/execute", "", mintJSON("cu-2", "alice"), http.StatusUnauthorized, "unauthenticated"},
		{"not minter", "/v1/execute", "mallory", mintJSON("cu-2", "alice"), http.StatusForbidden, "not_authorized"},
		{"not creator", "/v1/execute", "mallory", `{"update_collection_info":{"name":"x"}}`, http.StatusForbidden, "not_authorized"},
		{"not owner", "/v1/execute", "bob", `{"burn":{"token_id":"cu-1"}}`, http.StatusForbidden, "not_authorized"},
		{"missing token", "/v1/execute", "alice", `{"burn":{"token_id":"nope"}}`, http.StatusNotFound, "not_found"},
		{"claimed", "/v1/execute", "admin", mintJSON("cu-1", "bob"), http.StatusConflict, "already_exists"},
		{"instantiate twice", "/v1/instantiate", "admin", instantiateJSON, http.StatusConflict, "already_exists"},
		{"selected", "/v1/execute", "alice",
			`{"update_nft_info":{"token_id":"cu-1","extension":{"update_pool":{"new_commitment_tier_id":2}}}}`,
			http.StatusUnprocessableEntity, "wrong_state"},
		{"malformed", "/v1/execute", "admin", `{"mint":`, http.StatusBadRequest, "invalid_input"},
		{"invalid owner", "/v1/execute", "admin", mintJSON("cu-3", "has space"), http.StatusBadRequest, "invalid_input"},
		{"unknown query", "/v1/query", "", `{"approvals":{}}`, http.StatusBadRequest, "invalid_input"},
		{"query missing", "/v1/query", "", `{"nft_info":{"token_id":"nope"}}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.post(t, tt.path, tt.sender, tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode, string(body))
			assert.Equal(t, tt.wantKind, errorKind(t, body))
		})
	}
}

func TestHandler_BeforeInstantiate(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/v1/query", "", `{"get_config":{}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, body))

	resp, body = s.post(t, "/v1/migrate", "admin", `{"migrate":{}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Instantiated)
}

func TestHandler_Healthz(t *testing.T) {
	s := newTestServer(t)
	s.instantiate(t)

	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, health.Instantiated)
	assert.Equal(t, consumption.Version, health.Version)
}

type brokenVersion struct{}

func (brokenVersion) ContractVersion(context.Context) (domain.ContractVersion, error) {
	return domain.ContractVersion{}, errors.New("disk on fire")
}

func TestHandler_HealthzDown(t *testing.T) {
	c := consumption.New(memory.NewKVStore(), address.Loose{})
	h := NewHandler(contract.NewRouter(c, nil, nil, nil, discard), brokenVersion{}, nil, nil, discard)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"down"`)
}

func TestHandler_RequestID(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))

	resp, err = http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)
}

func TestHandler_TokenEvents(t *testing.T) {
	s := newTestServer(t)
	s.instantiate(t)

	resp, body := s.post(t, "/v1/execute", "admin", mintJSON("cu-1", "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = s.post(t, "/v1/execute", "alice", `{"burn":{"token_id":"cu-1"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	httpResp, err := http.Get(s.URL + "/v1/tokens/cu-1/events")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var events EventsResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&events))
	require.Len(t, events.Events, 2)
	assert.Equal(t, consumption.EventMint, events.Events[0].Type)
	assert.Equal(t, consumption.EventBurn, events.Events[1].Type)
	assert.Equal(t, "alice", events.Events[1].Sender)
}

func TestHandler_EventStream(t *testing.T) {
	s := newTestServer(t)
	s.instantiate(t)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/events/ws?token_id=cu-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.StreamClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, body := s.post(t, "/v1/execute", "admin", mintJSON("cu-1", "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e domain.AuditEvent
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, consumption.EventMint, e.Type)
	assert.Equal(t, "cu-1", e.TokenID)
	assert.Equal(t, "admin", e.Sender)
	assert.Len(t, e.EventID, 64)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)

	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	resp, body := s.post(t, "/v1/query", "", string(big))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", errorKind(t, body))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{consumption.ErrNotMinter, http.StatusForbidden},
		{consumption.ErrNotOwner, http.StatusForbidden},
		{consumption.ErrNotCreator, http.StatusForbidden},
		{consumption.ErrNotInstantiated, http.StatusNotFound},
		{consumption.ErrAlreadyInstantiated, http.StatusConflict},
		{consumption.ErrWrongState, http.StatusUnprocessableEntity},
		{consumption.ErrInvalidInput, http.StatusBadRequest},
		{consumption.ErrStorage, http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.code, code, "err %v", tt.err)
	}
}

func TestWriteError_HidesStorageDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.Join(consumption.ErrStorage, errors.New("pq: password authentication failed")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
