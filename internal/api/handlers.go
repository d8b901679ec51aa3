package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"code-runner/internal/monitor"
	"code-runner/internal/queue"
	"code-runner/internal/runtime"
	"code-runner/internal/storage"
)

// Store is the subset of the record store the submission path needs.
type Store interface {
	CreateSession(ctx context.Context) (*storage.Session, error)
	GetSession(ctx context.Context, id string) (*storage.Session, error)
	CreateExecution(ctx context.Context, exec *storage.Execution) error
	GetExecution(ctx context.Context, id string) (*storage.Execution, error)
	ListSessionExecutions(ctx context.Context, sessionID string, limit int) ([]storage.Execution, error)
}

// Enqueuer publishes jobs to the shared queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

type Handlers struct {
	store       Store
	queue       Enqueuer
	runtimes    *runtime.Registry
	metrics     *monitor.Metrics
	maxCodeSize int
}

func NewHandlers(store Store, q Enqueuer, runtimes *runtime.Registry, metrics *monitor.Metrics, maxCodeSize int) *Handlers {
	return &Handlers{
		store:       store,
		queue:       q,
		runtimes:    runtimes,
		metrics:     metrics,
		maxCodeSize: maxCodeSize,
	}
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.CreateSession(r.Context())
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("create session failed")
		writeError(w, "failed to create session", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sess.ID, Status: sess.Status})
}

// HandleRunCode validates a submission, persists the execution in QUEUED
// state, then enqueues the job. All validation happens before any side
// effect, and the record always exists before the job is visible to workers.
func (h *Handlers) HandleRunCode(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.Code == "" || req.Language == "" {
		writeError(w, "Code and language are required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if !h.runtimes.Supported(req.Language) {
		writeError(w, "Unsupported language: "+req.Language, "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if len(req.Code) > h.maxCodeSize {
		writeError(w, fmt.Sprintf("Code is too large: %d bytes (max %d)", len(req.Code), h.maxCodeSize),
			"INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, "Session not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("session lookup failed")
		writeError(w, "internal server error", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	exec := &storage.Execution{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Language:  req.Language,
		Code:      req.Code,
		Status:    storage.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateExecution(r.Context(), exec); err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("create execution failed")
		writeError(w, "internal server error", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	job := queue.Job{
		ExecutionID: exec.ID,
		Code:        req.Code,
		Language:    req.Language,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		// The record exists but no worker will ever see it; surface the
		// failure so the caller does not poll a QUEUED record forever.
		log.Error().Err(err).Str("execution_id", exec.ID).Msg("enqueue failed")
		writeError(w, "internal server error", "QUEUE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	h.metrics.RecordSubmission(req.Language, len(req.Code))

	writeJSON(w, http.StatusOK, RunResponse{
		ExecutionID: exec.ID,
		Status:      string(storage.StatusQueued),
	})
}

func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("executionId")

	exec, err := h.store.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, "Execution not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution lookup failed")
		writeError(w, "internal server error", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) HandleListSessionExecutions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, "Session not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("session lookup failed")
		writeError(w, "internal server error", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	execs, err := h.store.ListSessionExecutions(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("list executions failed")
		writeError(w, "internal server error", "STORE_FAILURE", http.StatusInternalServerError, r)
		return
	}
	if execs == nil {
		execs = []storage.Execution{}
	}

	writeJSON(w, http.StatusOK, execs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
