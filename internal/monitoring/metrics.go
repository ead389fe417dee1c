// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes: Total and successful request counts
//   - upstream_errors:    Calls that failed after retry exhaustion
//   - fallbacks:          Tier advancements past the primary backend
//   - degraded:           Requests answered degraded (placeholder or stale relay)
//   - streams:            Raw passthrough streams proxied to clients
//   - tokens:             Prompt and completion token estimates
//   - desk/snapshots:     Session frame pushes and snapshot writes
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64

	// Dispatch counters
	upstreamErrors atomic.Int64
	fallbacks      atomic.Int64
	degraded       atomic.Int64
	streams        atomic.Int64

	// Token counters (estimates from the usage counter)
	totalPromptTokens     atomic.Int64
	totalCompletionTokens atomic.Int64

	// Side-surface counters
	deskFrames     atomic.Int64
	snapshotWrites atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordRequest records a completed dispatch.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordUpstreamError records a backend call that failed for good.
func (mc *MetricsCollector) RecordUpstreamError() { mc.upstreamErrors.Add(1) }

// RecordFallback records an advancement to a lower tier.
func (mc *MetricsCollector) RecordFallback() { mc.fallbacks.Add(1) }

// RecordDegraded records a request answered without any upstream.
func (mc *MetricsCollector) RecordDegraded() { mc.degraded.Add(1) }

// RecordStream records a raw passthrough stream.
func (mc *MetricsCollector) RecordStream() { mc.streams.Add(1) }

// RecordUsage records token counts for a single request.
func (mc *MetricsCollector) RecordUsage(promptTokens, completionTokens int) {
	mc.totalPromptTokens.Add(int64(promptTokens))
	mc.totalCompletionTokens.Add(int64(completionTokens))
}

// RecordDeskFrame records a frame pushed into a desk session.
func (mc *MetricsCollector) RecordDeskFrame() { mc.deskFrames.Add(1) }

// RecordSnapshotWrite records a stored snapshot.
func (mc *MetricsCollector) RecordSnapshotWrite() { mc.snapshotWrites.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()
	prompt := mc.totalPromptTokens.Load()
	completion := mc.totalCompletionTokens.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
		},
		Dispatch: DispatchStats{
			UpstreamErrors: mc.upstreamErrors.Load(),
			Fallbacks:      mc.fallbacks.Load(),
			Degraded:       mc.degraded.Load(),
			Streams:        mc.streams.Load(),
		},
		Tokens: TokenStats{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		Desk: DeskStats{
			Frames: mc.deskFrames.Load(),
		},
		Snapshots: SnapshotStats{
			Writes: mc.snapshotWrites.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string        `json:"uptime"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartedAt     string        `json:"started_at"`
	Requests      RequestStats  `json:"requests"`
	Dispatch      DispatchStats `json:"dispatch"`
	Tokens        TokenStats    `json:"tokens"`
	Desk          DeskStats     `json:"desk"`
	Snapshots     SnapshotStats `json:"snapshots"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// DispatchStats holds backend dispatch metrics.
type DispatchStats struct {
	UpstreamErrors int64 `json:"upstream_errors"`
	Fallbacks      int64 `json:"fallbacks"`
	Degraded       int64 `json:"degraded"`
	Streams        int64 `json:"streams"`
}

// TokenStats holds token usage estimates.
type TokenStats struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// DeskStats holds desk session metrics.
type DeskStats struct {
	Frames int64 `json:"frames"`
}

// SnapshotStats holds snapshot store metrics.
type SnapshotStats struct {
	Writes int64 `json:"writes"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
