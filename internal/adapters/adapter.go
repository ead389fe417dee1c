// Package adapters - protocol translation between the canonical request
// form and each backend mode's wire format.
//
// DESIGN: One adapter per backend mode, each a BuildRequest/ExtractText pair:
//   - openai:   body passes through with model/stream rewritten
//   - envelope: structured {agent_id, action, params} agent envelope
//   - custom:   single configurable request field plus a fixed model tag
//   - relay:    {command, params.prompt} wrapper with a degraded "via" marker
//
// Adapters never perform I/O. BuildRequest produces a complete outbound
// request description and ExtractText turns a raw upstream body into text;
// the gateway layer owns sending, retries, and fallback.
package adapters

import (
	"fmt"
	"net/http"

	"github.com/tidwall/sjson"

	"github.com/relaydesk/model-gateway/internal/backends"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CanonicalRequest is the backend-agnostic form of an inbound completion
// request. Exactly one of Messages/Prompt is populated. Raw holds the
// original client body so passthrough mode can preserve unmapped fields.
type CanonicalRequest struct {
	Model    string
	Messages []Message
	Prompt   string
	Stream   bool
	Raw      []byte
}

// Text returns the current request text: the last message's content for
// chat calls, the prompt for legacy completion calls.
func (r *CanonicalRequest) Text() string {
	if n := len(r.Messages); n > 0 {
		return r.Messages[n-1].Content
	}
	return r.Prompt
}

// BackendRequest is a fully built outbound call, ready for the executor.
type BackendRequest struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Extraction is the result of pulling answer text out of an upstream body.
// Degraded marks responses the upstream itself flagged as placeholder
// output (relay mode's "via" marker); the caller decides how to surface it.
type Extraction struct {
	Text     string
	Degraded bool
}

// Adapter translates between canonical form and one backend mode's format.
type Adapter interface {
	// BuildRequest produces the outbound request for a resolved backend.
	// The descriptor must be configured; callers check that first.
	BuildRequest(d backends.Descriptor, creq *CanonicalRequest) (*BackendRequest, error)

	// ExtractText pulls the answer text from a raw upstream response body.
	// It never fails: malformed JSON falls back to the raw text itself.
	ExtractText(d backends.Descriptor, body []byte) Extraction
}

// ForMode returns the adapter for a backend mode.
func ForMode(mode backends.Mode) (Adapter, error) {
	switch mode {
	case backends.ModeOpenAI:
		return &OpenAI{}, nil
	case backends.ModeEnvelope:
		return &Envelope{}, nil
	case backends.ModeCustom:
		return &Custom{}, nil
	case backends.ModeRelay:
		return &Relay{}, nil
	default:
		return nil, fmt.Errorf("no adapter for backend mode %q", mode)
	}
}

// baseHeader builds the common outbound headers: JSON content type plus a
// bearer credential when the descriptor carries one.
func baseHeader(d backends.Descriptor) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if d.AuthKey != "" {
		h.Set("Authorization", "Bearer "+d.AuthKey)
	}
	return h
}

// canonicalBody synthesizes an OpenAI-shaped body from canonical fields.
// Used when no raw client body is available (fallback tiers, tests).
func canonicalBody(creq *CanonicalRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", creq.Model); err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}
	if len(creq.Messages) > 0 {
		if body, err = sjson.SetBytes(body, "messages", creq.Messages); err != nil {
			return nil, fmt.Errorf("set messages: %w", err)
		}
	} else {
		if body, err = sjson.SetBytes(body, "prompt", creq.Prompt); err != nil {
			return nil, fmt.Errorf("set prompt: %w", err)
		}
	}
	return body, nil
}
