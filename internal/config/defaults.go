// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// RETRY POLICY
// =============================================================================

// DefaultMaxAttempts is the total number of tries for one upstream call
// (the first attempt plus retries).
const DefaultMaxAttempts = 4

// DefaultRetryBaseDelay seeds the exponential backoff schedule.
const DefaultRetryBaseDelay = 500 * time.Millisecond

// DefaultRetryMaxDelay caps a single backoff sleep before jitter.
const DefaultRetryMaxDelay = 8 * time.Second

// RetryJitterMax is the upper bound of the random jitter added to every
// backoff sleep so synchronized clients spread out.
const RetryJitterMax = 250 * time.Millisecond

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when the tiktoken encoding is unavailable.
const TokenEstimateRatio = 4

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultUpstreamTimeout bounds a single upstream attempt. Retries never
// extend it; each attempt gets a fresh deadline.
const DefaultUpstreamTimeout = 120 * time.Second

// DefaultBufferSize is the standard I/O buffer size for stream piping.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed inbound request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxResponseSize is the maximum buffered upstream response body (50MB).
const MaxResponseSize = 50 * 1024 * 1024

// MaxErrorBodyLen limits upstream error bodies carried in gateway error
// payloads and logs.
const MaxErrorBodyLen = 500

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultServerIdleTimeout for keep-alive connections.
const DefaultServerIdleTimeout = 120 * time.Second

// =============================================================================
// DESK SESSION STORE
// =============================================================================

// DefaultSessionTTL is how long an idle desk session is retained.
const DefaultSessionTTL = 1 * time.Hour

// DefaultSweepInterval is the frequency of the desk store janitor.
const DefaultSweepInterval = 5 * time.Minute

// MaxFrameSize is the maximum accepted desk frame payload (8MB).
const MaxFrameSize = 8 * 1024 * 1024

// WatchPollInterval is how often a frame watch feed checks for a new frame.
const WatchPollInterval = 250 * time.Millisecond

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// MaxSnapshotSize is the maximum accepted backup blob (32MB).
const MaxSnapshotSize = 32 * 1024 * 1024

// DefaultSnapshotDBPath is where the snapshot SQLite database lives.
const DefaultSnapshotDBPath = "snapshots.db"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultHost is the listen address.
const DefaultHost = "0.0.0.0"

// DefaultPort is the listen port.
const DefaultPort = 8090
