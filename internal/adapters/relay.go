package adapters

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/relaydesk/model-gateway/internal/backends"
)

// relayDegradedMarker flags a relay response produced while the relay's
// own upstream was unavailable. The relay reports this in its "via" field
// (e.g. "degraded-cache") rather than failing the call.
const relayDegradedMarker = "degraded"

// Relay speaks the command-envelope protocol of a forwarding relay:
// requests are {command, params.prompt} and responses may be served from
// a degraded source when the relay's upstream is down.
type Relay struct{}

// BuildRequest wraps the request text in the relay command envelope.
func (Relay) BuildRequest(d backends.Descriptor, creq *CanonicalRequest) (*BackendRequest, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "command", d.Command); err != nil {
		return nil, fmt.Errorf("set command: %w", err)
	}
	if body, err = sjson.SetBytes(body, "params.prompt", creq.Text()); err != nil {
		return nil, fmt.Errorf("set params.prompt: %w", err)
	}
	return &BackendRequest{
		URL:    d.BaseURL + d.Path,
		Header: baseHeader(d),
		Body:   body,
	}, nil
}

// ExtractText picks the relay's answer text and checks the "via" marker.
// A degraded response keeps its text only when non-empty; a degraded
// response with no usable text returns an empty degraded extraction so the
// caller can synthesize a placeholder that names the original prompt.
func (Relay) ExtractText(d backends.Descriptor, body []byte) Extraction {
	degraded := relayDegraded(body)
	if text, ok := PickPath(body, d.ResponsePaths); ok && text != "" {
		return Extraction{Text: text, Degraded: degraded}
	}
	if degraded {
		return Extraction{Degraded: true}
	}
	return Extraction{Text: rawText(body)}
}

// relayDegraded reports whether the response's via marker names a degraded
// serving path.
func relayDegraded(body []byte) bool {
	via := pickString(body, "via|result.via")
	return strings.Contains(strings.ToLower(via), relayDegradedMarker)
}

var _ Adapter = (*Relay)(nil)
