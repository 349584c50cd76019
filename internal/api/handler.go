// Package api exposes the collection over HTTP: JSON messages in, JSON
// responses out, plus the event history and the live event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"consumption-unit/internal/consumption"
	"consumption-unit/internal/contract"
	"consumption-unit/internal/domain"
	"consumption-unit/internal/observability"
)

const maxBodyBytes = 1 << 20

// versionReader is the minimal interface for the health check.
type versionReader interface {
	ContractVersion(ctx context.Context) (domain.ContractVersion, error)
}

// Handler serves the HTTP API.
type Handler struct {
	router  *contract.Router
	health  versionReader
	stream  http.Handler
	metrics *observability.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
	chain   http.Handler
}

// NewHandler builds the route table. stream and metrics may be nil.
func NewHandler(router *contract.Router, health versionReader, stream http.Handler, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		router:  router,
		health:  health,
		stream:  stream,
		metrics: metrics,
		logger:  logger.With("component", "api"),
		mux:     http.NewServeMux(),
	}

	h.handle("POST /v1/instantiate", h.mutation(h.router.Instantiate))
	h.handle("POST /v1/execute", h.mutation(h.router.Execute))
	h.handle("POST /v1/migrate", h.mutation(h.router.Migrate))
	h.handle("POST /v1/query", h.query)
	h.handle("GET /v1/tokens/{id}/events", h.tokenEvents)
	h.handle("GET /healthz", h.healthz)
	if stream != nil {
		h.mux.Handle("GET /v1/events/ws", stream)
	}
	h.chain = Chain(Recovery(h.logger), RequestID(), Logger(h.logger))(h.mux)
	return h
}

// ServeHTTP applies the middleware chain and dispatches.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	if h.metrics == nil {
		h.mux.HandleFunc(pattern, fn)
		return
	}
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		h.metrics.RecordHTTP(pattern, sw.status, time.Since(start))
	})
}

type mutationFunc func(ctx context.Context, info contract.Info, raw []byte) (*consumption.Response, error)

func (h *Handler) mutation(fn mutationFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sender := r.Header.Get(SenderHeader)
		if sender == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + SenderHeader + " header", Kind: "unauthenticated"})
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		info := contract.Info{Sender: sender, RequestID: RequestIDFromCtx(r.Context())}
		resp, err := fn(r.Context(), info, body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.router.Query(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) tokenEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.router.TokenEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Timestamp: time.Now().UTC()}
	v, err := h.health.ContractVersion(ctx)
	switch {
	case err == nil:
		resp.Instantiated = true
		resp.Version = v.Version
	case errors.Is(err, consumption.ErrNotInstantiated):
	default:
		h.logger.Warn("health check failed", "error", err)
		resp.Status = "down"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", consumption.ErrInvalidInput, err)
	}
	return body, nil
}

// EventsResponse is the token history.
type EventsResponse struct {
	Events []*domain.AuditEvent `json:"events"`
}

// HealthResponse is the JSON response for /healthz.
type HealthResponse struct {
	Status       string    `json:"status"`
	Instantiated bool      `json:"instantiated"`
	Version      string    `json:"version,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, consumption.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, consumption.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, consumption.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, consumption.ErrWrongState):
		return http.StatusUnprocessableEntity, "wrong_state"
	case errors.Is(err, consumption.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "storage"
	}
}
