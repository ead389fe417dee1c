package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/model-gateway/internal/adapters"
)

// responseSurface selects the OpenAI response shape: chat or legacy text.
type responseSurface int

const (
	chatSurface responseSurface = iota
	textSurface
)

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      responseMsg `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type responseMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type textCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []textChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

type textChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// writeCompletion shapes a canonical response into the OpenAI contract.
// The serving backend and the degraded flag travel as response headers, so
// the JSON payload stays strictly OpenAI-shaped.
func (g *Gateway) writeCompletion(w http.ResponseWriter, creq *adapters.CanonicalRequest, res *canonicalResponse, surface responseSurface) {
	u := countUsage(creq, res.Text)
	g.metrics.RecordUsage(u.PromptTokens, u.CompletionTokens)

	w.Header().Set("X-Gateway-Backend", res.Source)
	if res.Degraded {
		w.Header().Set("X-Gateway-Degraded", "true")
	}

	model := creq.Model
	if model == "" {
		model = res.Source
	}
	created := time.Now().Unix()

	if surface == textSurface {
		writeJSON(w, http.StatusOK, textCompletionResponse{
			ID:      "cmpl-" + uuid.NewString(),
			Object:  "text_completion",
			Created: created,
			Model:   model,
			Choices: []textChoice{{Text: res.Text, FinishReason: "stop"}},
			Usage:   u,
		})
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []chatChoice{{
			Message:      responseMsg{Role: "assistant", Content: res.Text},
			FinishReason: "stop",
		}},
		Usage: u,
	})
}
