package adapters

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/relaydesk/model-gateway/internal/backends"
)

// customFallbackPaths are common answer field names tried when the
// configured candidate paths all miss.
const customFallbackPaths = "text|reply|response|content"

// Custom speaks a minimal field-mapped protocol: the request text goes
// under one configurable key and responses are sniffed from well-known
// field names. Fits homegrown inference servers with ad-hoc JSON shapes.
type Custom struct{}

// BuildRequest nests the request text under the configured request field.
func (Custom) BuildRequest(d backends.Descriptor, creq *CanonicalRequest) (*BackendRequest, error) {
	model := d.Model
	if model == "" {
		model = "custom"
	}
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, d.RequestField, creq.Text()); err != nil {
		return nil, fmt.Errorf("set %s: %w", d.RequestField, err)
	}
	if body, err = sjson.SetBytes(body, "model", model); err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}
	return &BackendRequest{
		URL:    d.BaseURL + d.Path,
		Header: baseHeader(d),
		Body:   body,
	}, nil
}

// ExtractText tries the configured candidate paths, then the fixed list of
// common field names, then stringifies the whole body.
func (Custom) ExtractText(d backends.Descriptor, body []byte) Extraction {
	if text, ok := PickPath(body, d.ResponsePaths); ok {
		return Extraction{Text: text}
	}
	if text, ok := PickPath(body, customFallbackPaths); ok {
		return Extraction{Text: text}
	}
	return Extraction{Text: rawText(body)}
}

var _ Adapter = (*Custom)(nil)
