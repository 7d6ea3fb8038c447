package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fanvote/fanvote-service/internal/config"
	"github.com/fanvote/fanvote-service/internal/contest"
	"github.com/fanvote/fanvote-service/internal/metrics"
	"github.com/fanvote/fanvote-service/internal/protocol"
	"github.com/fanvote/fanvote-service/internal/store"
)

// Prometheus collectors register globally, so the test binary shares one set.
var testMetrics = metrics.NewMetrics()

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	contests := store.NewContestStore(db)
	ballots := store.NewBallotStore(db)
	results := store.NewResultStore(db)
	coordinator := contest.NewCoordinator(logger, contests, ballots, results, time.Minute)

	cfg := &config.Config{
		HTTP: config.HTTPConfig{Port: 8080, Address: "127.0.0.1", Enabled: true},
	}

	return NewHTTPServer(cfg.HTTP, logger, cfg, contests, ballots, results, coordinator, testMetrics)
}

func doJSON(t *testing.T, h *HTTPServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func createContest(t *testing.T, h *HTTPServer, id string, entrantIDs ...string) {
	t.Helper()

	entrants := make([]map[string]string, len(entrantIDs))
	for i, eid := range entrantIDs {
		entrants[i] = map[string]string{"id": eid, "name": strings.ToUpper(eid)}
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contests", map[string]any{
		"id":       id,
		"name":     "Finale",
		"entrants": entrants,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create contest returned %d: %s", rec.Code, rec.Body.String())
	}
}

func ballotBody(contestID, voterID string, ranked ...string) map[string]any {
	entries := make([]map[string]any, len(ranked))
	for i, eid := range ranked {
		entries[i] = map[string]any{"entrant_id": eid, "rank": i + 1}
	}
	return map[string]any{
		"contest_id": contestID,
		"voter_id":   voterID,
		"entries":    entries,
	}
}

func TestContestLifecycle(t *testing.T) {
	h := newTestServer(t)

	createContest(t, h, "c1", "a", "b", "c")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/contests/c1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get contest returned %d", rec.Code)
	}

	var detail struct {
		Contest  store.Contest   `json:"contest"`
		Entrants []store.Entrant `json:"entrants"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if detail.Contest.EntrantCount != 3 || len(detail.Entrants) != 3 {
		t.Errorf("unexpected contest detail: %+v", detail)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing contest returned %d, want 404", rec.Code)
	}
}

func TestChallengeEndpoint(t *testing.T) {
	h := newTestServer(t)
	createContest(t, h, "c1", "a", "b")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/challenge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Challenge string `json:"challenge"`
		IssuedAt  int64  `json:"issued_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}

	want := fmt.Sprintf("FANVOTE:c1:AUTH:%d", resp.IssuedAt)
	if resp.Challenge != want {
		t.Errorf("challenge = %q, want %q", resp.Challenge, want)
	}
	if reason := protocol.Validate(resp.Challenge, "c1", time.Unix(resp.IssuedAt, 0)); reason != protocol.ReasonNone {
		t.Errorf("issued challenge does not validate: %s", reason)
	}
}

func TestBallotSubmission(t *testing.T) {
	h := newTestServer(t)
	createContest(t, h, "c1", "a", "b", "c")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v1", "b", "a", "c"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit returned %d: %s", rec.Code, rec.Body.String())
	}

	// Same voter again
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v1", "a", "b", "c"))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate voter returned %d, want 409", rec.Code)
	}

	// Sparse ranking
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v2", "a", "b"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete ballot returned %d, want 400", rec.Code)
	}

	// Well-ranked but naming an entrant the contest does not have: density
	// alone would admit it and skew every later tally.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v2", "a", "b", "ghost"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown-entrant ballot returned %d, want 400", rec.Code)
	}

	// The rejected voter id is still free to submit a correct ballot.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v2", "a", "b", "c"))
	if rec.Code != http.StatusCreated {
		t.Errorf("corrected ballot returned %d: %s", rec.Code, rec.Body.String())
	}

	// Unknown contest
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("nope", "v2", "a", "b", "c"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown contest returned %d, want 404", rec.Code)
	}

	// Legacy location shape is normalized, not rejected
	body := ballotBody("c1", "v3", "c", "b", "a")
	body["location"] = map[string]any{"_lat": 51.5, "_long": -0.12}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", body)
	if rec.Code != http.StatusCreated {
		t.Errorf("legacy location returned %d: %s", rec.Code, rec.Body.String())
	}

	// Malformed location is rejected at the boundary
	body = ballotBody("c1", "v4", "a", "c", "b")
	body["location"] = map[string]any{"latitude": 200, "longitude": 0}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range location returned %d, want 400", rec.Code)
	}
}

func TestBallotRejectedAfterConclusion(t *testing.T) {
	h := newTestServer(t)
	createContest(t, h, "c1", "a", "b")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/contests/c1/conclude",
		map[string]any{"concludes_at": time.Now().Add(-time.Minute).Unix()})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("conclude returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/ballots", ballotBody("c1", "v1", "a", "b"))
	if rec.Code != http.StatusConflict {
		t.Errorf("post-conclusion ballot returned %d, want 409", rec.Code)
	}
}

func TestTallyAndResults(t *testing.T) {
	h := newTestServer(t)
	createContest(t, h, "c1", "a", "b", "c")

	for i, ranked := range [][]string{
		{"a", "b", "c"},
		{"a", "c", "b"},
		{"b", "a", "c"},
	} {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/ballots",
			ballotBody("c1", fmt.Sprintf("v%d", i), ranked...))
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit %d returned %d", i, rec.Code)
		}
	}

	// Live contest refuses a plain tally
	rec := doJSON(t, h, http.MethodPost, "/api/v1/contests/c1/tally", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("live tally returned %d, want 409", rec.Code)
	}

	// Results not yet computed
	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/results", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("results before tally returned %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/contests/c1/tally?force=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("forced tally returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results returned %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var doc struct {
		Standings []struct {
			EntrantID string `json:"entrant_id"`
			Points    int    `json:"points"`
		} `json:"standings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid results document: %v", err)
	}
	if len(doc.Standings) != 3 || doc.Standings[0].EntrantID != "a" {
		t.Errorf("unexpected standings: %+v", doc.Standings)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/results?format=csv", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "place,entrant_id,points,share") {
		t.Errorf("csv results = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/results?format=table", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "PLACE") {
		t.Errorf("table results = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/contests/c1/results?format=xml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format returned %d, want 400", rec.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health body = %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("stats returned %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health returned %d, want 405", rec.Code)
	}
}
