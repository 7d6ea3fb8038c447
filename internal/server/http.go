package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fanvote/fanvote-service/internal/ballot"
	"github.com/fanvote/fanvote-service/internal/config"
	"github.com/fanvote/fanvote-service/internal/contest"
	"github.com/fanvote/fanvote-service/internal/format"
	"github.com/fanvote/fanvote-service/internal/metrics"
	"github.com/fanvote/fanvote-service/internal/protocol"
	"github.com/fanvote/fanvote-service/internal/store"
)

// HTTPServer provides the HTTP API for contest administration, ballot
// submission, and result retrieval
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	contests    *store.ContestStore
	ballots     *store.BallotStore
	results     *store.ResultStore
	coordinator *contest.Coordinator
	metrics     *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	contests *store.ContestStore, ballots *store.BallotStore, results *store.ResultStore,
	coordinator *contest.Coordinator, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		contests:    contests,
		ballots:     ballots,
		results:     results,
		coordinator: coordinator,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Contest administration and per-contest operations
	mux.HandleFunc("/api/v1/contests", h.withMetrics("/api/v1/contests", h.handleContests))
	mux.HandleFunc("/api/v1/contests/", h.withMetrics("/api/v1/contests/{id}", h.handleContestDetail))

	// Ballot submission
	mux.HandleFunc("/api/v1/ballots", h.withMetrics("/api/v1/ballots", h.handleBallots))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// createContestRequest is the POST /api/v1/contests body
type createContestRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Entrants []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"entrants"`
}

// handleContests implements POST /api/v1/contests
func (h *HTTPServer) handleContests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ID == "" || req.Name == "" || len(req.Entrants) == 0 {
		http.Error(w, "id, name and entrants are required", http.StatusBadRequest)
		return
	}

	entrants := make([]store.Entrant, len(req.Entrants))
	for i, e := range req.Entrants {
		if e.ID == "" {
			http.Error(w, "entrant id is required", http.StatusBadRequest)
			return
		}
		entrants[i] = store.Entrant{ID: e.ID, Name: e.Name, Position: i + 1}
	}

	c := store.Contest{
		ID:           req.ID,
		Name:         req.Name,
		EntrantCount: len(entrants),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.contests.Create(r.Context(), c, entrants); err != nil {
		h.logger.Error("Failed to create contest",
			slog.String("contest_id", req.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Failed to create contest", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Contest created",
		slog.String("contest_id", c.ID),
		slog.Int("entrant_count", c.EntrantCount),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

// handleContestDetail routes /api/v1/contests/{id} and its sub-resources:
// challenge, conclude, tally, results.
func (h *HTTPServer) handleContestDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/contests/")
	if rest == "" {
		http.Error(w, "Contest ID required", http.StatusBadRequest)
		return
	}

	contestID, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		h.handleGetContest(w, r, contestID)
	case "challenge":
		h.handleChallenge(w, r, contestID)
	case "conclude":
		h.handleConclude(w, r, contestID)
	case "tally":
		h.handleTally(w, r, contestID)
	case "results":
		h.handleResults(w, r, contestID)
	default:
		http.NotFound(w, r)
	}
}

// handleGetContest implements GET /api/v1/contests/{id}
func (h *HTTPServer) handleGetContest(w http.ResponseWriter, r *http.Request, contestID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, err := h.contests.Get(r.Context(), contestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Contest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read contest", http.StatusInternalServerError)
		return
	}

	entrants, err := h.contests.Entrants(r.Context(), contestID)
	if err != nil {
		http.Error(w, "Failed to read entrants", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"contest":  c,
		"entrants": entrants,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleChallenge implements GET /api/v1/contests/{id}/challenge. The
// returned payload is what the venue broadcasts over audio.
func (h *HTTPServer) handleChallenge(w http.ResponseWriter, r *http.Request, contestID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.contests.Get(r.Context(), contestID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Contest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read contest", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	response := map[string]interface{}{
		"contest_id": contestID,
		"challenge":  protocol.BuildChallenge(contestID, now),
		"issued_at":  now.Unix(),
		"valid_for":  int(protocol.ReplayWindow.Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// concludeRequest is the POST conclude body. A missing timestamp means the
// contest concludes immediately.
type concludeRequest struct {
	ConcludesAt int64 `json:"concludes_at"`
}

// handleConclude implements POST /api/v1/contests/{id}/conclude
func (h *HTTPServer) handleConclude(w http.ResponseWriter, r *http.Request, contestID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req concludeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	concludesAt := time.Now().UTC()
	if req.ConcludesAt > 0 {
		concludesAt = time.Unix(req.ConcludesAt, 0).UTC()
	}

	if err := h.contests.SetConclusion(r.Context(), contestID, concludesAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Contest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to record conclusion", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Conclusion signal received",
		slog.String("contest_id", contestID),
		slog.Int64("concludes_at", concludesAt.Unix()),
	)

	response := map[string]interface{}{
		"contest_id":   contestID,
		"concludes_at": concludesAt.Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// handleTally implements POST /api/v1/contests/{id}/tally. The force query
// parameter recomputes a live contest.
func (h *HTTPServer) handleTally(w http.ResponseWriter, r *http.Request, contestID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	force := r.URL.Query().Get("force") == "true" || r.URL.Query().Get("force") == "1"

	startTime := time.Now()
	result, err := h.coordinator.Tally(r.Context(), contestID, force)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "Contest not found", http.StatusNotFound)
		case errors.Is(err, contest.ErrNotConcluded):
			http.Error(w, "Contest has not concluded; use force to recompute", http.StatusConflict)
		default:
			h.logger.Error("Tally failed",
				slog.String("contest_id", contestID),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Tally failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.RecordTally(result.BallotCount, time.Since(startTime).Seconds())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleResults implements GET /api/v1/contests/{id}/results with a format
// query parameter selecting the projection (json, csv, table).
func (h *HTTPServer) handleResults(w http.ResponseWriter, r *http.Request, contestID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("format")
	if name == "" {
		name = format.JSON
	}

	contentType, err := format.ContentType(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.results.Get(r.Context(), contestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No result computed for contest", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if err := format.Write(w, name, result); err != nil {
		h.logger.Error("Failed to render result",
			slog.String("contest_id", contestID),
			slog.String("format", name),
			slog.String("error", err.Error()),
		)
	}
}

// submitBallotRequest is the POST /api/v1/ballots body
type submitBallotRequest struct {
	ContestID string          `json:"contest_id"`
	VoterID   string          `json:"voter_id"`
	Entries   []ballot.Entry  `json:"entries"`
	Location  json.RawMessage `json:"location"` // optional, normalized by ballot.ParseLocation
}

// handleBallots implements POST /api/v1/ballots. All ballot integrity rules
// are enforced here, at the submission boundary: the contest must exist and
// still be live, the entries must be a dense permutation over the contest's
// entrants, and the voter must not have voted before.
func (h *HTTPServer) handleBallots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitBallotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordBallotRejected("invalid_body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ContestID == "" || req.VoterID == "" {
		h.metrics.RecordBallotRejected("missing_fields")
		http.Error(w, "contest_id and voter_id are required", http.StatusBadRequest)
		return
	}

	c, err := h.contests.Get(r.Context(), req.ContestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.metrics.RecordBallotRejected("contest_not_found")
			http.Error(w, "Contest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read contest", http.StatusInternalServerError)
		return
	}

	if h.coordinator.Concluded(c) {
		h.metrics.RecordBallotRejected("contest_concluded")
		http.Error(w, "Contest has concluded", http.StatusConflict)
		return
	}

	if err := ballot.ValidateEntries(req.Entries, c.EntrantCount); err != nil {
		h.metrics.RecordBallotRejected("invalid_entries")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entrants, err := h.contests.Entrants(r.Context(), req.ContestID)
	if err != nil {
		http.Error(w, "Failed to read entrants", http.StatusInternalServerError)
		return
	}
	entrantIDs := make([]string, len(entrants))
	for i, e := range entrants {
		entrantIDs[i] = e.ID
	}
	if err := ballot.ValidateEntrants(req.Entries, entrantIDs); err != nil {
		h.metrics.RecordBallotRejected("unknown_entrant")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	location, err := ballot.ParseLocation(req.Location)
	if err != nil {
		h.metrics.RecordBallotRejected("invalid_location")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b := &ballot.Ballot{
		ContestID: req.ContestID,
		VoterID:   req.VoterID,
		Entries:   req.Entries,
		Location:  location,
	}

	if err := h.ballots.Append(r.Context(), b); err != nil {
		if errors.Is(err, store.ErrDuplicateVoter) {
			h.metrics.RecordBallotRejected("duplicate_voter")
			http.Error(w, "Voter has already submitted a ballot", http.StatusConflict)
			return
		}
		h.logger.Error("Failed to store ballot",
			slog.String("contest_id", req.ContestID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Failed to store ballot", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordBallotAccepted()
	h.logger.Debug("Ballot accepted",
		slog.String("contest_id", b.ContestID),
		slog.String("ballot_id", b.ID),
	)

	response := map[string]interface{}{
		"ballot_id":    b.ID,
		"contest_id":   b.ContestID,
		"submitted_at": b.SubmittedAt.Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "fanvote-service",
			"version": "1.0.0",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	concluding, err := h.contests.ListWithConclusion(r.Context())
	if err != nil {
		http.Error(w, "Failed to read contests", http.StatusInternalServerError)
		return
	}

	stats := map[string]interface{}{
		"uptime":              time.Since(h.startTime).String(),
		"timestamp":           time.Now().UTC(),
		"concluding_contests": len(concluding),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Fan Voting Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                                "API documentation",
			"POST /api/v1/contests":                "Create a contest with its entrants",
			"GET /api/v1/contests/{id}":            "Get contest details",
			"GET /api/v1/contests/{id}/challenge":  "Issue the acoustic challenge payload",
			"POST /api/v1/contests/{id}/conclude":  "Record a conclusion signal",
			"POST /api/v1/contests/{id}/tally":     "Compute the aggregate result (?force=true for live contests)",
			"GET /api/v1/contests/{id}/results":    "Fetch results (?format=json|csv|table)",
			"POST /api/v1/ballots":                 "Submit a ranked ballot",
			"GET /health":                          "Service health check",
			"GET /stats":                           "Service statistics",
			"GET /metrics":                         "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
