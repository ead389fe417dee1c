package adapters

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/relaydesk/model-gateway/internal/backends"
)

// Envelope speaks the structured agent-gateway protocol: requests are an
// {agent_id, action, params} envelope and responses describe an agent run
// rather than a plain completion.
type Envelope struct{}

// BuildRequest nests the request text under the configured objective field.
func (Envelope) BuildRequest(d backends.Descriptor, creq *CanonicalRequest) (*BackendRequest, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "agent_id", d.AgentID); err != nil {
		return nil, fmt.Errorf("set agent_id: %w", err)
	}
	if body, err = sjson.SetBytes(body, "action", d.Action); err != nil {
		return nil, fmt.Errorf("set action: %w", err)
	}
	if body, err = sjson.SetBytes(body, "params."+d.ObjectiveField, creq.Text()); err != nil {
		return nil, fmt.Errorf("set params.%s: %w", d.ObjectiveField, err)
	}
	return &BackendRequest{
		URL:    d.BaseURL + d.Path,
		Header: baseHeader(d),
		Body:   body,
	}, nil
}

// ExtractText assembles an answer from whichever envelope fragments the
// backend returned: the echoed objective, the configured response paths,
// a free-form note, and a steps array rendered as a numbered list. The
// fragments are joined with newlines; an envelope carrying none of them
// falls back to the stringified body.
func (Envelope) ExtractText(d backends.Descriptor, body []byte) Extraction {
	var parts []string
	if objective := pickString(body, "result.params."+d.ObjectiveField+"|params."+d.ObjectiveField); objective != "" {
		parts = append(parts, "Objective: "+objective)
	}
	if text, ok := PickPath(body, d.ResponsePaths); ok && text != "" {
		parts = append(parts, text)
	}
	if note := pickString(body, "result.note|note"); note != "" {
		parts = append(parts, note)
	}
	if steps := numberedSteps(body, "result.steps|steps"); steps != "" {
		parts = append(parts, steps)
	}
	if len(parts) == 0 {
		return Extraction{Text: rawText(body)}
	}
	return Extraction{Text: strings.Join(parts, "\n")}
}

var _ Adapter = (*Envelope)(nil)
