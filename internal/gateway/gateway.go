// Package gateway - HTTP surface of the model gateway.
//
// DESIGN: Completion request flow:
//   - handleChatCompletions / handleCompletions: parse the OpenAI-shaped body
//   - dispatch():  resolve the backend, build its payload, send with retries
//   - fallback:    retry-exhausted 429s advance primary → secondary → relay,
//                  ending in a synthesized degraded answer instead of a 5xx
//   - respond:     extracted text reshaped into an OpenAI response, or a raw
//                  SSE pipe for passthrough streaming
//
// Side surfaces (desk sessions, snapshots, stats, health) are thin handlers
// over their stores and never touch the dispatch path.
package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/relaydesk/model-gateway/internal/backends"
	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/desk"
	"github.com/relaydesk/model-gateway/internal/monitoring"
	"github.com/relaydesk/model-gateway/internal/snapshot"
	"github.com/relaydesk/model-gateway/internal/upstream"
	"github.com/relaydesk/model-gateway/internal/utils"
)

// Gateway wires the registry, executor, and stores behind the HTTP API.
type Gateway struct {
	cfg       *config.Config
	registry  *backends.Registry
	exec      *upstream.Executor
	metrics   *monitoring.MetricsCollector
	desk      *desk.Store
	snapshots *snapshot.Store
}

// New builds a gateway from configuration. The configuration must already
// have passed Validate.
func New(cfg *config.Config) (*Gateway, error) {
	registry, err := backends.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend registry: %w", err)
	}
	snapshots, err := snapshot.Open(cfg.Snapshot)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		cfg:      cfg,
		registry: registry,
		exec: upstream.New(upstream.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
		}, cfg.UpstreamTimeout()),
		metrics:   monitoring.NewMetricsCollector(),
		desk:      desk.NewStore(cfg.Desk),
		snapshots: snapshots,
	}, nil
}

// Close releases the gateway's stores.
func (g *Gateway) Close() error {
	g.desk.Close()
	return g.snapshots.Close()
}

// Handler returns the gateway's full HTTP handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)

	// OpenAI-compatible surface
	mux.HandleFunc("POST /v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("POST /v1/completions", g.handleCompletions)
	mux.HandleFunc("GET /v1/models", g.handleModels)

	// Desk sessions
	mux.HandleFunc("POST /desk/sessions", g.handleDeskCreate)
	mux.HandleFunc("GET /desk/sessions", g.handleDeskList)
	mux.HandleFunc("GET /desk/sessions/{id}", g.handleDeskGet)
	mux.HandleFunc("DELETE /desk/sessions/{id}", g.handleDeskDelete)
	mux.HandleFunc("PUT /desk/sessions/{id}/frame", g.handleDeskPushFrame)
	mux.HandleFunc("GET /desk/sessions/{id}/frame", g.handleDeskLatestFrame)
	mux.HandleFunc("GET /desk/sessions/{id}/watch", g.handleDeskWatch)

	// Snapshot backup/restore
	mux.HandleFunc("GET /v1/snapshots", g.handleSnapshotList)
	mux.HandleFunc("PUT /v1/snapshots/{name}", g.handleSnapshotSave)
	mux.HandleFunc("GET /v1/snapshots/{name}", g.handleSnapshotLoad)
	mux.HandleFunc("DELETE /v1/snapshots/{name}", g.handleSnapshotDelete)

	return requestIDMiddleware(corsMiddleware(logMiddleware(authMiddleware(g.cfg, mux))))
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": "1.0.0",
		"models":  g.registry.Models(),
	}

	status := http.StatusOK
	if err := g.snapshots.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// errorResponse is the JSON error contract. Error always carries a human
// description; Body holds the failing upstream's truncated response, and
// the fallback fields record what each lower tier did when one was tried.
type errorResponse struct {
	Error              string `json:"error"`
	Body               string `json:"body,omitempty"`
	FallbackError      string `json:"fallback_error,omitempty"`
	FallbackRelayError string `json:"fallback_relay_error,omitempty"`
}

// writeJSON writes v as JSON. HTML escaping is off so prompt text in
// degraded answers survives byte-for-byte.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := utils.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes a minimal JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
