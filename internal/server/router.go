// Package server wires the HTTP routes and middleware chain for the topic
// API.
package server

import (
	"net/http"
	"time"

	"github.com/itmlab/anchorserve/internal/server/handler"
	"github.com/itmlab/anchorserve/pkg/health"
	"github.com/itmlab/anchorserve/pkg/metrics"
	"github.com/itmlab/anchorserve/pkg/middleware"
)

// Options configures route construction.
type Options struct {
	StaticDir      string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

// New builds the full HTTP handler.
//
// Route table:
//
//	GET  /api/v1/topics            → topic query (optional anchors param)
//	GET  /api/v1/anchors           → default anchor set, token form
//	GET  /api/v1/vocab             → full vocabulary
//	GET  /api/v1/vocab/size        → vocabulary size
//	GET  /api/v1/cooccurrences     → cooccurrence matrix
//	POST /api/v1/sessions          → save study session
//	GET  /api/v1/sessions          → list study sessions
//	GET  /api/v1/cache/stats       → cache layer counters
//	POST /api/v1/cache/invalidate  → drop in-process caches
//	GET  /health/live              → liveness
//	GET  /health/ready             → readiness
//	GET  /                         → interactive UI static files
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout.
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/topics", h.Topics)
	mux.HandleFunc("GET /api/v1/anchors", h.BaseAnchors)
	mux.HandleFunc("GET /api/v1/vocab", h.Vocab)
	mux.HandleFunc("GET /api/v1/vocab/size", h.VocabSize)
	mux.HandleFunc("GET /api/v1/cooccurrences", h.Cooccurrences)
	mux.HandleFunc("POST /api/v1/sessions", h.SaveSession)
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	}

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = middleware.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
