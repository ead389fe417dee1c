// Package upstream sends requests to backend services with bounded retries.
//
// DESIGN: One Executor wraps one http.Client and is shared by every request.
//   - Do():     fully buffered call running the whole retry schedule
//   - Stream(): same schedule, but hands back the live response for piping
//
// Classification is purely HTTP-layer: 429 and 5xx are transient, every other
// status is final. Payload semantics belong to the adapters. The executor
// never mutates its input; each attempt re-sends the identical payload.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/utils"
)

// Policy bounds the retry loop for one logical upstream call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = config.DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = config.DefaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = config.DefaultRetryMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Request is one buffered outbound call.
type Request struct {
	Method  string // defaults to POST
	URL     string
	Header  http.Header
	Body    []byte
	Label   string        // short backend name for logs
	Timeout time.Duration // per-attempt bound; zero uses the executor default
}

// Result is a fully buffered upstream response with a 2xx status.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// HTTPError is a non-2xx upstream response, body truncated in the message
// but carried whole for callers that need it.
type HTTPError struct {
	Status int
	Body   []byte
	Header http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status,
		utils.TruncateString(string(e.Body), config.MaxErrorBodyLen))
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status <= 599)
}

// errBuildRequest marks failures before any bytes hit the wire; retrying
// those can never help.
var errBuildRequest = errors.New("build upstream request")

// Executor sends requests with retries, exponential backoff, jitter, and
// Retry-After deference.
type Executor struct {
	client  *http.Client
	policy  Policy
	timeout time.Duration // default per-attempt bound
}

// New creates an executor. timeout bounds each attempt, not the whole call;
// retries never extend it.
func New(policy Policy, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	return &Executor{
		client:  &http.Client{}, // deadlines come from per-attempt contexts
		policy:  policy.normalized(),
		timeout: timeout,
	}
}

// Do performs the call with the full retry schedule and buffers the response.
// On a final non-2xx the returned error is an *HTTPError.
func (e *Executor) Do(ctx context.Context, req *Request) (*Result, error) {
	res, _, err := e.roundTrip(ctx, req, false)
	return res, err
}

// Stream performs the call with the same retry schedule but returns the live
// http.Response as soon as a 2xx arrives. The caller owns resp.Body. The
// parent context bounds the whole stream; per-attempt timeouts do not apply
// here since they would cut long-lived streams short.
func (e *Executor) Stream(ctx context.Context, req *Request) (*http.Response, error) {
	_, resp, err := e.roundTrip(ctx, req, true)
	return resp, err
}

func (e *Executor) roundTrip(ctx context.Context, req *Request, stream bool) (*Result, *http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		result, live, hint, err := e.attempt(ctx, req, stream)
		if err == nil {
			return result, live, nil
		}
		lastErr = err

		var httpErr *HTTPError
		switch {
		case errors.As(err, &httpErr):
			if !httpErr.Retryable() {
				return nil, nil, err
			}
		case errors.Is(err, errBuildRequest):
			return nil, nil, err
		case ctx.Err() != nil:
			// The caller is gone; the per-attempt classification is moot.
			return nil, nil, err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}
		delay := e.backoff(attempt, hint)
		log.Debug().
			Str("label", req.Label).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying upstream call")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, nil, lastErr
}

// attempt performs exactly one HTTP exchange. The returned hint is the
// parsed Retry-After value for retryable statuses, zero otherwise.
func (e *Executor) attempt(ctx context.Context, req *Request, stream bool) (*Result, *http.Response, time.Duration, error) {
	actx := ctx
	cancel := context.CancelFunc(func() {})
	if !stream {
		timeout := req.Timeout
		if timeout <= 0 {
			timeout = e.timeout
		}
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	hreq, err := http.NewRequestWithContext(actx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", errBuildRequest, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		hreq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(hreq)
	if err != nil {
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, nil, 0, fmt.Errorf("%s: attempt timed out: %w", req.Label, err)
		}
		return nil, nil, 0, fmt.Errorf("%s: %w", req.Label, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if stream {
			return nil, resp, 0, nil
		}
		defer resp.Body.Close()
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, int64(config.MaxResponseSize)))
		if rerr != nil {
			return nil, nil, 0, fmt.Errorf("%s: read response: %w", req.Label, rerr)
		}
		return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil, 0, nil
	}

	// Non-2xx: buffer the body so the error record carries it.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(config.MaxResponseSize)))
	resp.Body.Close()
	return nil, nil, retryAfterHint(resp.Header), &HTTPError{
		Status: resp.StatusCode,
		Body:   body,
		Header: resp.Header,
	}
}

// backoff computes the sleep before the next attempt: exponential growth
// capped at MaxDelay, raised to the server's Retry-After hint when that is
// larger, plus uniform jitter.
func (e *Executor) backoff(attempt int, hint time.Duration) time.Duration {
	delay := e.policy.BaseDelay << (attempt - 1)
	if delay <= 0 || delay > e.policy.MaxDelay {
		delay = e.policy.MaxDelay
	}
	if hint > delay {
		delay = hint
	}
	return delay + rand.N(config.RetryJitterMax)
}

// retryAfterHint parses a Retry-After header as either delta-seconds or an
// HTTP-date. Zero means no usable hint.
func retryAfterHint(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
