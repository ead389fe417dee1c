package unit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/relaydesk/model-gateway/internal/config"
)

const ssePayload = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
	"data: [DONE]\n\n"

func TestStreaming_PassthroughPipesBytesVerbatim(t *testing.T) {
	var calls int32
	mockLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First attempt is rate limited; the executor retries to acquire
		// the stream before any bytes reach the client.
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool(), "upstream should see stream=true")

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, ssePayload)
		flusher.Flush()
	}))
	defer mockLLM.Close()

	cfg := gatewayConfig(t)
	cfg.Backends["primary"] = config.BackendConf{BaseURL: mockLLM.URL, Mode: "openai"}
	gwServer := newGatewayServer(t, cfg)

	resp, body := postJSON(t, gwServer.URL+"/v1/chat/completions", `{
		"model": "primary",
		"stream": true,
		"messages": [{"role": "user", "content": "Hello!"}]
	}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "primary", resp.Header.Get("X-Gateway-Backend"))
	assert.Equal(t, ssePayload, string(body), "stream bytes must pass through unmodified")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStreaming_AcquisitionFailureIs502(t *testing.T) {
	mockLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"no stream for you"}`))
	}))
	defer mockLLM.Close()

	cfg := gatewayConfig(t)
	cfg.Backends["primary"] = config.BackendConf{BaseURL: mockLLM.URL, Mode: "openai"}
	gwServer := newGatewayServer(t, cfg)

	resp, body := postJSON(t, gwServer.URL+"/v1/chat/completions", `{
		"model": "primary",
		"stream": true,
		"messages": [{"role": "user", "content": "Hello!"}]
	}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, gjson.GetBytes(body, "error").String(), "status 400")
}

func TestStreaming_NonPassthroughModeAnswersBuffered(t *testing.T) {
	mockSecondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		// The custom protocol never sees a stream flag.
		assert.False(t, gjson.GetBytes(body, "stream").Exists())
		_, _ = w.Write([]byte(`{"text":"buffered"}`))
	}))
	defer mockSecondary.Close()

	cfg := gatewayConfig(t)
	cfg.Backends["secondary"] = config.BackendConf{BaseURL: mockSecondary.URL, Mode: "custom"}
	gwServer := newGatewayServer(t, cfg)

	resp, body := postJSON(t, gwServer.URL+"/v1/chat/completions", `{
		"model": "secondary",
		"stream": true,
		"messages": [{"role": "user", "content": "Hello!"}]
	}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Equal(t, "chat.completion", gjson.GetBytes(body, "object").String())
	assert.Equal(t, "buffered", gjson.GetBytes(body, "choices.0.message.content").String())
}
