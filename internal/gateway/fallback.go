package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/adapters"
	"github.com/relaydesk/model-gateway/internal/backends"
	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/upstream"
	"github.com/relaydesk/model-gateway/internal/utils"
)

// fallbackTiers is the fixed priority order tried after the resolved
// backend exhausts its retries rate limited.
var fallbackTiers = []string{backends.SecondaryName, backends.RelayName}

var errTierNotConfigured = errors.New("not configured (no base URL)")

// canonicalResponse is the outcome of a successful dispatch.
type canonicalResponse struct {
	Text     string
	Source   string
	Degraded bool
}

// dispatchError is a terminal dispatch failure ready to serialize.
type dispatchError struct {
	status int
	resp   errorResponse
}

// tierError records one tier's terminal failure.
type tierError struct {
	tier   string
	status int // 0 for network, build, and configuration failures
	body   []byte
	err    error
}

// rateLimited reports whether this failure was a retry-exhausted 429,
// the only failure kind that advances the fallback chain.
func (e *tierError) rateLimited() bool {
	return e.status == http.StatusTooManyRequests
}

func (e *tierError) describe() string {
	if e.status == 0 {
		return fmt.Sprintf("%s: %v", e.tier, e.err)
	}
	return fmt.Sprintf("%s: upstream status %d", e.tier, e.status)
}

func (e *tierError) truncatedBody() string {
	return utils.TruncateString(string(e.body), config.MaxErrorBodyLen)
}

// dispatch runs the buffered completion flow: call the resolved backend,
// and on a retry-exhausted 429 walk the fallback tiers in order. Tiers
// advance only on rate limiting; any other failure stops the chain and
// surfaces as a gateway error. When every tier is rate limited or
// unconfigured, a synthesized degraded answer is returned instead of an
// error, so callers see a 200 during a full upstream outage.
func (g *Gateway) dispatch(ctx context.Context, primary backends.Descriptor, creq *adapters.CanonicalRequest) (*canonicalResponse, *dispatchError) {
	res, terr := g.callTier(ctx, primary, creq)
	if terr == nil {
		return res, nil
	}
	if !terr.rateLimited() {
		g.metrics.RecordUpstreamError()
		return nil, terminalFailure(terr, nil)
	}

	log.Warn().
		Str("backend", primary.Name).
		Int("status", terr.status).
		Msg("backend rate limited after retries, trying fallback tiers")

	tried := map[string]bool{primary.Name: true}
	attempts := map[string]*tierError{}

	for _, name := range fallbackTiers {
		if tried[name] {
			continue
		}
		tried[name] = true
		g.metrics.RecordFallback()

		d := g.registry.ResolveBackend(name)
		if !d.Configured() {
			attempts[name] = &tierError{tier: name, err: errTierNotConfigured}
			log.Debug().Str("backend", name).Msg("fallback tier unconfigured, skipping")
			continue
		}

		res, terr := g.callTier(ctx, d, creq)
		if terr == nil {
			log.Info().Str("backend", name).Msg("fallback tier answered")
			return res, nil
		}
		attempts[name] = terr
		if !terr.rateLimited() {
			g.metrics.RecordUpstreamError()
			return nil, terminalFailure(terr, attempts)
		}
		log.Warn().Str("backend", name).Msg("fallback tier rate limited, advancing")
	}

	// Every real tier rate limited or unconfigured: answer degraded.
	g.metrics.RecordDegraded()
	return &canonicalResponse{
		Text:     degradedMessage(creq.Text()),
		Source:   backends.DegradedName,
		Degraded: true,
	}, nil
}

// callTier runs one backend attempt end to end: adapter build, retried
// send, extraction. A degraded relay answer with no usable text becomes a
// synthesized placeholder here, while the tier still counts as a success.
func (g *Gateway) callTier(ctx context.Context, d backends.Descriptor, creq *adapters.CanonicalRequest) (*canonicalResponse, *tierError) {
	adapter, err := adapters.ForMode(d.Mode)
	if err != nil {
		return nil, &tierError{tier: d.Name, err: err}
	}
	breq, err := adapter.BuildRequest(d, creq)
	if err != nil {
		return nil, &tierError{tier: d.Name, err: err}
	}

	res, err := g.exec.Do(ctx, &upstream.Request{
		URL:     breq.URL,
		Header:  breq.Header,
		Body:    breq.Body,
		Label:   d.Name,
		Timeout: d.Timeout,
	})
	if err != nil {
		var httpErr *upstream.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &tierError{tier: d.Name, status: httpErr.Status, body: httpErr.Body, err: err}
		}
		return nil, &tierError{tier: d.Name, err: err}
	}

	ext := adapter.ExtractText(d, res.Body)
	if ext.Degraded {
		g.metrics.RecordDegraded()
		if ext.Text == "" {
			ext.Text = degradedMessage(creq.Text())
		}
	}
	return &canonicalResponse{Text: ext.Text, Source: d.Name, Degraded: ext.Degraded}, nil
}

// terminalFailure shapes the chain-stopping failure into the client error
// contract: error and body describe the tier that stopped the chain, and
// the fallback fields record what the other tiers did before it.
func terminalFailure(terminal *tierError, attempts map[string]*tierError) *dispatchError {
	resp := errorResponse{
		Error: fmt.Sprintf("upstream request failed (%s)", terminal.describe()),
		Body:  terminal.truncatedBody(),
	}
	for name, attempt := range attempts {
		if attempt == terminal {
			continue
		}
		switch name {
		case backends.SecondaryName:
			resp.FallbackError = attempt.describe()
		case backends.RelayName:
			resp.FallbackRelayError = attempt.describe()
		}
	}
	return &dispatchError{status: http.StatusBadGateway, resp: resp}
}

// degradedMessage synthesizes the all-tiers-rate-limited placeholder. It
// embeds the original prompt so clients can tell which request it answers.
func degradedMessage(prompt string) string {
	return fmt.Sprintf("[degraded] All model backends are rate limited right now; no model output is available. Original request: %q. Please retry shortly.", prompt)
}
