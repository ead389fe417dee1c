package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/relaydesk/model-gateway/internal/adapters"
	"github.com/relaydesk/model-gateway/internal/backends"
	"github.com/relaydesk/model-gateway/internal/config"
)

// handleChatCompletions serves POST /v1/chat/completions.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	creq, err := parseCanonicalRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(creq.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}
	creq.Prompt = "" // chat surface speaks messages only
	g.serveCompletion(w, r, creq, chatSurface)
}

// handleCompletions serves POST /v1/completions (legacy text surface).
func (g *Gateway) handleCompletions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	creq, err := parseCanonicalRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(creq.Messages) > 0 || creq.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	g.serveCompletion(w, r, creq, textSurface)
}

// serveCompletion resolves the backend and either proxies a raw stream or
// runs the buffered dispatch-with-fallback path.
func (g *Gateway) serveCompletion(w http.ResponseWriter, r *http.Request, creq *adapters.CanonicalRequest, surface responseSurface) {
	d := g.registry.Resolve(creq.Model)
	if !d.Configured() {
		g.metrics.RecordRequest(false)
		writeError(w, http.StatusInternalServerError,
			"backend \""+d.Name+"\" has no base URL configured")
		return
	}

	// Raw streaming applies only to the passthrough protocol; other modes
	// answer buffered regardless of the stream flag.
	if creq.Stream && d.Mode == backends.ModeOpenAI {
		g.streamPassthrough(w, r, d, creq)
		return
	}
	creq.Stream = false

	res, derr := g.dispatch(r.Context(), d, creq)
	if derr != nil {
		g.metrics.RecordRequest(false)
		log.Error().
			Str("backend", d.Name).
			Str("model", creq.Model).
			Str("error", derr.resp.Error).
			Msg("dispatch failed")
		writeJSON(w, derr.status, derr.resp)
		return
	}

	g.metrics.RecordRequest(true)
	g.writeCompletion(w, creq, res, surface)
}

// readBody reads a capped request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// parseCanonicalRequest lifts the OpenAI-shaped body into canonical form.
// The raw body is kept alongside so passthrough mode forwards unmapped
// fields untouched.
func parseCanonicalRequest(body []byte) (*adapters.CanonicalRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("request body is not valid JSON")
	}

	creq := &adapters.CanonicalRequest{
		Model:  gjson.GetBytes(body, "model").String(),
		Stream: gjson.GetBytes(body, "stream").Bool(),
		Raw:    body,
	}

	if msgs := gjson.GetBytes(body, "messages"); msgs.IsArray() {
		for _, m := range msgs.Array() {
			creq.Messages = append(creq.Messages, adapters.Message{
				Role:    m.Get("role").String(),
				Content: messageText(m.Get("content")),
			})
		}
	}
	if prompt := gjson.GetBytes(body, "prompt"); prompt.Exists() {
		creq.Prompt = promptText(prompt)
	}

	if len(creq.Messages) == 0 && creq.Prompt == "" {
		return nil, errors.New("request needs messages or a prompt")
	}
	return creq, nil
}

// messageText flattens a message content value: plain strings pass through,
// multimodal part arrays contribute their text parts.
func messageText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if !content.IsArray() {
		return content.String()
	}
	var parts []string
	for _, part := range content.Array() {
		if part.Type == gjson.String {
			parts = append(parts, part.Str)
			continue
		}
		if text := part.Get("text"); text.Exists() {
			parts = append(parts, text.String())
		}
	}
	return strings.Join(parts, "")
}

// promptText flattens the legacy prompt field, which may be a string or an
// array of strings.
func promptText(prompt gjson.Result) string {
	if prompt.Type == gjson.String {
		return prompt.Str
	}
	if !prompt.IsArray() {
		return prompt.String()
	}
	var parts []string
	for _, p := range prompt.Array() {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, "\n")
}
