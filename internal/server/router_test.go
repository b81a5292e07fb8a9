package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/itmlab/anchorserve/internal/analytics"
	"github.com/itmlab/anchorserve/internal/cache/blob"
	"github.com/itmlab/anchorserve/internal/corpus"
	"github.com/itmlab/anchorserve/internal/server/handler"
	"github.com/itmlab/anchorserve/internal/topics"
	"github.com/itmlab/anchorserve/pkg/config"
	"github.com/itmlab/anchorserve/pkg/health"
)

func newTestService(t *testing.T) (*topics.Service, *health.Checker) {
	t.Helper()
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	docs := []corpus.Document{
		{Name: "d1", Tokens: []string{"a", "b", "a"}},
		{Name: "d2", Tokens: []string{"b", "c"}},
		{Name: "d3", Tokens: []string{"a", "c", "c"}},
	}
	svc := topics.NewService(store, func(ctx context.Context) (*corpus.Dataset, error) {
		return corpus.Build(ctx, corpus.FromDocuments(docs))
	}, config.ModelConfig{NumAnchors: 2, AnchorCandidates: 100, SummaryTerms: 10}, nil)
	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		if !svc.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "corpus not built"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	return svc, checker
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	svc, checker := newTestService(t)
	h := handler.New(svc, nil, nil, nil)
	return New(h, checker, Options{})
}

func doGet(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestTopicsDefaultAnchors(t *testing.T) {
	srv := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/topics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		Topics  [][]string `json:"topics"`
		Anchors [][]string `json:"anchors"`
	}
	decode(t, rec, &body)
	if len(body.Anchors) == 0 {
		t.Fatal("default query must include the anchors used")
	}
	if len(body.Topics) != len(body.Anchors) {
		t.Errorf("%d topics for %d anchors", len(body.Topics), len(body.Anchors))
	}
}

func TestTopicsSuppliedAnchors(t *testing.T) {
	srv := newTestServer(t)
	q := url.Values{"anchors": {`[["a"],["c"]]`}}
	rec := doGet(t, srv, "/api/v1/topics?"+q.Encode())
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		Topics  [][]string `json:"topics"`
		Anchors [][]string `json:"anchors"`
	}
	decode(t, rec, &body)
	if len(body.Topics) != 2 {
		t.Errorf("got %d topics, want 2", len(body.Topics))
	}
	if body.Anchors != nil {
		t.Error("supplied anchors must not be echoed")
	}
	for _, summary := range body.Topics {
		if len(summary) > 10 {
			t.Errorf("summary exceeds 10 terms: %v", summary)
		}
	}
}

func TestTopicsUnknownTerm(t *testing.T) {
	srv := newTestServer(t)
	q := url.Values{"anchors": {`[["zebra"]]`}}
	rec := doGet(t, srv, "/api/v1/topics?"+q.Encode())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if !strings.Contains(body["error"], "zebra") {
		t.Errorf("error should name the unknown term, got %q", body["error"])
	}
}

func TestTopicsMalformedAnchors(t *testing.T) {
	srv := newTestServer(t)
	for _, raw := range []string{`{`, `"dog"`, `[[true]]`, `[[]]`, `[["a"],[]]`} {
		q := url.Values{"anchors": {raw}}
		rec := doGet(t, srv, "/api/v1/topics?"+q.Encode())
		if rec.Code != http.StatusBadRequest {
			t.Errorf("anchors=%q: status %d, want 400", raw, rec.Code)
		}
	}
}

func TestTopicsEmptyAnchorSet(t *testing.T) {
	srv := newTestServer(t)
	q := url.Values{"anchors": {`[]`}}
	rec := doGet(t, srv, "/api/v1/topics?"+q.Encode())
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		Topics  [][]string `json:"topics"`
		Anchors [][]string `json:"anchors"`
	}
	decode(t, rec, &body)
	if len(body.Topics) != 0 {
		t.Errorf("empty anchor set gave %d topics, want 0", len(body.Topics))
	}
	if body.Anchors != nil {
		t.Error("explicit empty set must not fall back to defaults")
	}
}

func TestBaseAnchorsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/anchors")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Anchors [][]string `json:"anchors"`
	}
	decode(t, rec, &body)
	if len(body.Anchors) != 2 {
		t.Errorf("got %d default anchors, want 2", len(body.Anchors))
	}
}

func TestVocabEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doGet(t, srv, "/api/v1/vocab")
	if rec.Code != http.StatusOK {
		t.Fatalf("vocab status %d", rec.Code)
	}
	var vocabBody struct {
		Vocab []string `json:"vocab"`
	}
	decode(t, rec, &vocabBody)
	if len(vocabBody.Vocab) != 3 {
		t.Errorf("vocab %v, want 3 terms", vocabBody.Vocab)
	}

	rec = doGet(t, srv, "/api/v1/vocab/size")
	var sizeBody struct {
		VocabSize int `json:"vocab_size"`
	}
	decode(t, rec, &sizeBody)
	if sizeBody.VocabSize != 3 {
		t.Errorf("vocab_size = %d, want 3", sizeBody.VocabSize)
	}
}

func TestCooccurrencesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/cooccurrences")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Cooccurrences [][]float64 `json:"cooccurrences"`
	}
	decode(t, rec, &body)
	if len(body.Cooccurrences) != 3 {
		t.Fatalf("matrix has %d rows, want 3", len(body.Cooccurrences))
	}
	for i, row := range body.Cooccurrences {
		if len(row) != 3 {
			t.Errorf("row %d has %d columns", i, len(row))
		}
	}
}

func TestSessionsDisabled(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"anchors":[]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST status %d, want 503 when capture is disabled", rec.Code)
	}
	if rec = doGet(t, srv, "/api/v1/sessions"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET status %d, want 503 when capture is disabled", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// Populate the memo, then read stats.
	doGet(t, srv, "/api/v1/topics")
	rec := doGet(t, srv, "/api/v1/cache/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status %d", rec.Code)
	}
	var stats map[string]any
	decode(t, rec, &stats)
	if _, ok := stats["memo"]; !ok {
		t.Error("stats missing memo section")
	}
	if _, ok := stats["durable"]; !ok {
		t.Error("stats missing durable section")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
	inv := httptest.NewRecorder()
	srv.ServeHTTP(inv, req)
	if inv.Code != http.StatusOK {
		t.Errorf("invalidate status %d", inv.Code)
	}

	// Invalidated caches refill from the durable store on the next request.
	if rec := doGet(t, srv, "/api/v1/topics"); rec.Code != http.StatusOK {
		t.Errorf("topics after invalidate: status %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	if rec := doGet(t, srv, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live status %d", rec.Code)
	}
	rec := doGet(t, srv, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status %d, body %s", rec.Code, rec.Body)
	}
	var report health.Report
	decode(t, rec, &report)
	if report.Status != health.StatusUp {
		t.Errorf("readiness %q, want up", report.Status)
	}
}

func TestAnalyticsEventsTracked(t *testing.T) {
	svc, checker := newTestService(t)
	collector := analytics.NewCollector(nil, 8)
	h := handler.New(svc, nil, collector, nil)
	srv := New(h, checker, Options{})

	if rec := doGet(t, srv, "/api/v1/anchors"); rec.Code != http.StatusOK {
		t.Fatalf("anchors status %d", rec.Code)
	}
	if rec := doGet(t, srv, "/api/v1/topics"); rec.Code != http.StatusOK {
		t.Fatalf("topics status %d", rec.Code)
	}
	if got := collector.Pending(); got != 2 {
		t.Errorf("collector buffered %d events, want 2", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/vocab/size")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vocab/size", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	echo := httptest.NewRecorder()
	srv.ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("client request id not honoured, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/topics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", rec.Code)
	}
}
