package adapters

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/relaydesk/model-gateway/internal/backends"
)

// OpenAI passes the client body through to an OpenAI-compatible backend,
// rewriting only the model name and stream flag. Extra client fields
// (temperature, max_tokens, ...) survive untouched.
type OpenAI struct{}

// BuildRequest rewrites the raw client body in place. When no raw body is
// available one is synthesized from the canonical fields.
func (OpenAI) BuildRequest(d backends.Descriptor, creq *CanonicalRequest) (*BackendRequest, error) {
	body := creq.Raw
	var err error
	if len(body) == 0 {
		if body, err = canonicalBody(creq); err != nil {
			return nil, err
		}
	}
	if d.Model != "" {
		if body, err = sjson.SetBytes(body, "model", d.Model); err != nil {
			return nil, fmt.Errorf("rewrite model: %w", err)
		}
	}
	if body, err = sjson.SetBytes(body, "stream", creq.Stream); err != nil {
		return nil, fmt.Errorf("set stream flag: %w", err)
	}
	return &BackendRequest{
		URL:    d.BaseURL + d.Path,
		Header: baseHeader(d),
		Body:   body,
	}, nil
}

// ExtractText picks the completion text from the configured candidate
// paths (chat message content first, then legacy completion text).
func (OpenAI) ExtractText(d backends.Descriptor, body []byte) Extraction {
	if text, ok := PickPath(body, d.ResponsePaths); ok {
		return Extraction{Text: text}
	}
	return Extraction{Text: rawText(body)}
}

var _ Adapter = (*OpenAI)(nil)
