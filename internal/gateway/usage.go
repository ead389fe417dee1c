package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/adapters"
	"github.com/relaydesk/model-gateway/internal/config"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// tokenEncoder returns the shared cl100k_base encoder, or nil when the
// encoding tables could not be loaded (first use may fetch them).
func tokenEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken unavailable, using length heuristic for usage")
			return
		}
		encoder = enc
	})
	return encoder
}

// countTokens estimates the token count of text. Falls back to a bytes
// ratio heuristic when the encoder is unavailable.
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := tokenEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + config.TokenEstimateRatio - 1) / config.TokenEstimateRatio
}

// countUsage builds the usage block for a completed request. The prompt
// side counts every message's content (or the legacy prompt).
func countUsage(creq *adapters.CanonicalRequest, completion string) usage {
	prompt := 0
	if len(creq.Messages) > 0 {
		for _, m := range creq.Messages {
			prompt += countTokens(m.Content)
		}
	} else {
		prompt = countTokens(creq.Prompt)
	}

	u := usage{
		PromptTokens:     prompt,
		CompletionTokens: countTokens(completion),
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
