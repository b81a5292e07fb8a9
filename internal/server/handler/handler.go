// Package handler implements the HTTP API over the topics service: topic
// queries, default anchors, vocabulary introspection, session capture, and
// cache management.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/itmlab/anchorserve/internal/analytics"
	"github.com/itmlab/anchorserve/internal/anchor"
	"github.com/itmlab/anchorserve/internal/session"
	"github.com/itmlab/anchorserve/internal/topics"
	"github.com/itmlab/anchorserve/pkg/errors"
	"github.com/itmlab/anchorserve/pkg/logger"
	"github.com/itmlab/anchorserve/pkg/metrics"
	"github.com/itmlab/anchorserve/pkg/middleware"
)

const maxSessionBody = 1 << 20

type Handler struct {
	svc       *topics.Service
	sessions  *session.Store
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. sessions, collector, and m may be nil; the
// corresponding features degrade gracefully.
func New(svc *topics.Service, sessions *session.Store, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		svc:       svc,
		sessions:  sessions,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

// Topics answers GET /api/v1/topics. Without an anchors parameter the
// cached default anchor set is used and echoed back; with one, the supplied
// anchors are converted and used, and only topics are returned.
func (h *Handler) Topics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var groups []anchor.Group
	anchorSource := "default"
	if raw := r.URL.Query().Get("anchors"); raw != "" {
		parsed, err := anchor.ParseGroups(raw)
		if err != nil {
			log.Warn("bad anchors parameter", "error", err)
			h.writeErr(w, err)
			h.countQuery(anchorSource, "bad_request")
			return
		}
		groups = parsed
		anchorSource = "supplied"
	}

	result, cacheHit, err := h.svc.Query(ctx, groups)
	if err != nil {
		status := errors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("topic query failed", "error", err)
		} else {
			log.Warn("topic query rejected", "error", err)
		}
		h.writeErr(w, err)
		h.countQuery(anchorSource, outcomeLabel(status))
		h.track(ctx, anchorSource, groups, nil, cacheHit, start, status)
		return
	}

	latency := time.Since(start)
	log.Info("topic query completed",
		"anchor_source", anchorSource,
		"topics", len(result.Topics),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.countQuery(anchorSource, "ok")
	h.track(ctx, anchorSource, groups, result, cacheHit, start, http.StatusOK)
	h.writeJSON(w, http.StatusOK, result)
}

// BaseAnchors answers GET /api/v1/anchors with the default anchor set in
// token form.
func (h *Handler) BaseAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := h.svc.BaseAnchors(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("base anchors failed", "error", err)
		h.writeErr(w, err)
		return
	}
	if h.collector != nil {
		h.collector.Track(analytics.QueryEvent{
			Type:       analytics.EventDefaultAnchors,
			NumAnchors: len(anchors),
			RequestID:  middleware.GetRequestID(r.Context()),
			Timestamp:  time.Now().UTC(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"anchors": anchors})
}

// Vocab answers GET /api/v1/vocab with the full term list.
func (h *Handler) Vocab(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Dataset(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"vocab": ds.Vocab})
}

// VocabSize answers GET /api/v1/vocab/size.
func (h *Handler) VocabSize(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Dataset(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"vocab_size": ds.VocabSize()})
}

// Cooccurrences answers GET /api/v1/cooccurrences with the dataset's full
// cooccurrence matrix.
func (h *Handler) Cooccurrences(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Dataset(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cooccurrences": ds.Cooccurrences()})
}

// SaveSession answers POST /api/v1/sessions, persisting the submitted study
// state.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "session capture is disabled")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSessionBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if !json.Valid(body) {
		h.writeError(w, http.StatusBadRequest, "session payload must be JSON")
		return
	}

	id, err := h.sessions.Save(r.Context(), body, middleware.GetRequestID(r.Context()))
	if err != nil {
		logger.FromContext(r.Context()).Error("session save failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	if h.collector != nil {
		h.collector.Track(analytics.QueryEvent{
			Type:      analytics.EventSessionSaved,
			RequestID: middleware.GetRequestID(r.Context()),
			Timestamp: time.Now().UTC(),
		})
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// ListSessions answers GET /api/v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "session capture is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := h.sessions.List(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("session list failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if records == nil {
		records = []session.Record{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// CacheStats answers GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

// CacheInvalidate answers POST /api/v1/cache/invalidate by dropping the
// in-process caches. Durable entries are deleted out of band.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	h.svc.InvalidateMemo()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) countQuery(source, outcome string) {
	if h.metrics != nil {
		h.metrics.TopicQueriesTotal.WithLabelValues(source, outcome).Inc()
	}
}

func (h *Handler) track(ctx context.Context, source string, groups []anchor.Group, result *topics.Result, cacheHit bool, start time.Time, status int) {
	if h.collector == nil {
		return
	}
	event := analytics.QueryEvent{
		Type:          analytics.EventTopicQuery,
		AnchorSource:  source,
		NumAnchors:    len(groups),
		CacheHit:      cacheHit,
		LatencyMs:     time.Since(start).Milliseconds(),
		RequestID:     middleware.GetRequestID(ctx),
		Timestamp:     time.Now().UTC(),
		OutcomeStatus: status,
	}
	if result != nil {
		event.NumTopics = len(result.Topics)
		if source == "default" {
			event.NumAnchors = len(result.Anchors)
		}
	}
	h.collector.Track(event)
}

func outcomeLabel(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "bad_request"
	case status >= http.StatusInternalServerError:
		return "error"
	default:
		return "ok"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	h.writeError(w, errors.HTTPStatusCode(err), err.Error())
}
