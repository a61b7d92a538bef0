// Package handler provides the HTTP boundary for the comment engine.
package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/metrics"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/service"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	ingestion  *service.IngestionService
	threading  *service.ThreadingService
	moderation *service.ModerationService
	reactions  *service.ReactionService
	threads    *service.ThreadService
	metrics    *metrics.Metrics
	validate   *validator.Validate
	logger     *zap.Logger
	timeout    time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	ingestion *service.IngestionService,
	threading *service.ThreadingService,
	moderation *service.ModerationService,
	reactions *service.ReactionService,
	threads *service.ThreadService,
	m *metrics.Metrics,
	logger *zap.Logger,
	timeout time.Duration,
) *Handlers {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handlers{
		ingestion:  ingestion,
		threading:  threading,
		moderation: moderation,
		reactions:  reactions,
		threads:    threads,
		metrics:    m,
		validate:   validator.New(),
		logger:     logger,
		timeout:    timeout,
	}
}

// Register wires all routes onto the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/threads/{thread_id}/comments", h.SubmitComment)
	mux.HandleFunc("GET /v1/threads/{thread_id}/comments", h.ListComments)
	mux.HandleFunc("GET /v1/threads/{thread_id}/comments/{comment_id}", h.GetComment)
	mux.HandleFunc("POST /v1/threads/{thread_id}/comments/{comment_id}/status", h.TransitionComment)
	mux.HandleFunc("PUT /v1/threads/{thread_id}/comments/{comment_id}/reactions/{type}", h.AddReaction)
	mux.HandleFunc("DELETE /v1/threads/{thread_id}/comments/{comment_id}/reactions/{type}", h.RemoveReaction)
	mux.HandleFunc("GET /v1/threads/{thread_id}", h.GetThread)
	mux.HandleFunc("PUT /v1/threads/{thread_id}/policy", h.SetThreadPolicy)
}

// submitCommentRequest is the submission payload.
type submitCommentRequest struct {
	ParentID       string `json:"parent_id" validate:"omitempty,max=64"`
	AuthorIdentity string `json:"author_identity" validate:"omitempty,max=512"`
	AuthorName     string `json:"author_name" validate:"omitempty,max=128"`
	Body           string `json:"body" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=128"`
}

type submitCommentResponse struct {
	CommentID string       `json:"comment_id"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// SubmitComment handles POST /v1/threads/{thread_id}/comments requests.
func (h *Handlers) SubmitComment(w http.ResponseWriter, r *http.Request) {
	var req submitCommentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	// The idempotency key can also arrive as a header, which is how retrying
	// widget clients send it
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if req.AuthorIdentity == "" {
		req.AuthorIdentity = clientAddress(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	comment, created, err := h.ingestion.Submit(ctx, service.SubmitRequest{
		ThreadID:       r.PathValue("thread_id"),
		ParentID:       req.ParentID,
		AuthorIdentity: req.AuthorIdentity,
		AuthorName:     req.AuthorName,
		Body:           req.Body,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.metrics.RecordSubmissionError(errors.KindOf(err).String())
		if errors.KindOf(err) == errors.KindRateLimited {
			h.metrics.RateLimitRejections.Inc()
		}
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		h.metrics.IdempotencyHits.Inc()
		status = http.StatusOK
	}
	h.metrics.RecordSubmission(string(comment.Status))
	h.writeJSONResponse(w, status, submitCommentResponse{
		CommentID: comment.ID,
		Status:    comment.Status,
		CreatedAt: comment.CreatedAt,
	})
}

// ListComments handles GET /v1/threads/{thread_id}/comments requests.
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, errors.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.threading.List(ctx, r.PathValue("thread_id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, page)
}

// GetComment handles GET /v1/threads/{thread_id}/comments/{comment_id} requests.
func (h *Handlers) GetComment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	comment, _, err := h.threading.GetComment(ctx, r.PathValue("thread_id"), r.PathValue("comment_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, comment)
}

// transitionRequest is the moderation action payload.
type transitionRequest struct {
	Status string `json:"status" validate:"required,max=32"`
	Actor  string `json:"actor" validate:"omitempty,max=128"`
}

// TransitionComment handles POST /v1/threads/{thread_id}/comments/{comment_id}/status requests.
func (h *Handlers) TransitionComment(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	comment, err := h.moderation.Transition(ctx,
		r.PathValue("thread_id"),
		r.PathValue("comment_id"),
		model.Status(req.Status),
		req.Actor,
	)
	if err != nil {
		if errors.KindOf(err) == errors.KindVersionConflict {
			h.metrics.TransitionConflicts.Inc()
		}
		h.writeError(w, r, err)
		return
	}

	h.metrics.RecordTransition(string(comment.Status))
	h.writeJSONResponse(w, http.StatusOK, comment)
}

// reactionRequest identifies the reacting author.
type reactionRequest struct {
	AuthorIdentity string `json:"author_identity" validate:"omitempty,max=512"`
}

// AddReaction handles PUT /v1/threads/{thread_id}/comments/{comment_id}/reactions/{type} requests.
func (h *Handlers) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.AuthorIdentity == "" {
		req.AuthorIdentity = clientAddress(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.reactions.Add(ctx,
		r.PathValue("thread_id"),
		r.PathValue("comment_id"),
		req.AuthorIdentity,
		model.ReactionType(r.PathValue("type")),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusNoContent, nil)
}

// RemoveReaction handles DELETE /v1/threads/{thread_id}/comments/{comment_id}/reactions/{type} requests.
func (h *Handlers) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.AuthorIdentity == "" {
		req.AuthorIdentity = clientAddress(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.reactions.Remove(ctx,
		r.PathValue("thread_id"),
		r.PathValue("comment_id"),
		req.AuthorIdentity,
		model.ReactionType(r.PathValue("type")),
	)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusNoContent, nil)
}

// GetThread handles GET /v1/threads/{thread_id} requests.
func (h *Handlers) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	thread, _, err := h.threads.Get(ctx, r.PathValue("thread_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, thread)
}

// policyRequest is the thread policy payload.
type policyRequest struct {
	AutoApproveThreshold float64 `json:"auto_approve_threshold" validate:"gte=0,lte=1"`
	Locked               bool    `json:"locked"`
}

// SetThreadPolicy handles PUT /v1/threads/{thread_id}/policy requests.
func (h *Handlers) SetThreadPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	thread, err := h.threads.SetPolicy(ctx, r.PathValue("thread_id"), model.Policy{
		AutoApproveThreshold: req.AutoApproveThreshold,
		Locked:               req.Locked,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, thread)
}

// decodeBody decodes and validates the JSON request body, writing the error
// response itself on failure. An empty body decodes to the zero value.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			h.writeError(w, r, errors.Validation("malformed JSON body"))
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return false
	}
	return true
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		h.logger.Warn("Request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	h.writeJSONResponse(w, status, errorResponse{
		Error:     err.Error(),
		Retryable: errors.Retryable(err),
	})
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	if data == nil {
		w.WriteHeader(statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// clientAddress derives the rate-limiting identity when the caller does not
// provide one. The nearest proxy hop wins; the value is hashed before storage.
func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
