package unit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/monitoring"
)

func TestHealth_ReportsOKAndModels(t *testing.T) {
	gwServer := newGatewayServer(t, gatewayConfig(t))

	resp, body := doRequest(t, http.MethodGet, gwServer.URL+"/health", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", gjson.GetBytes(body, "status").String())

	models := gjson.GetBytes(body, "models").Array()
	require.NotEmpty(t, models)
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.String())
	}
	assert.Contains(t, names, "primary")
}

func TestStats_TracksTrafficAcrossSurfaces(t *testing.T) {
	mockLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"counted"}}]}`))
	}))
	defer mockLLM.Close()

	cfg := gatewayConfig(t)
	cfg.Backends["primary"] = config.BackendConf{BaseURL: mockLLM.URL, Mode: "openai"}
	gwServer := newGatewayServer(t, cfg)

	resp, _ := postJSON(t, gwServer.URL+"/v1/chat/completions", `{
		"model": "primary",
		"messages": [{"role": "user", "content": "count me"}]
	}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id := createDeskSession(t, gwServer.URL)
	resp, _ = doRequest(t, http.MethodPut, gwServer.URL+"/desk/sessions/"+id+"/frame", "text/plain", []byte("f1"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPut, gwServer.URL+"/v1/snapshots/counted", "text/plain", []byte("s1"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, http.MethodGet, gwServer.URL+"/stats", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats monitoring.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))

	assert.Equal(t, int64(1), stats.Requests.Total)
	assert.Equal(t, int64(1), stats.Requests.Successful)
	assert.Equal(t, int64(0), stats.Requests.Failed)
	assert.Positive(t, stats.Tokens.PromptTokens)
	assert.Positive(t, stats.Tokens.CompletionTokens)
	assert.Equal(t, stats.Tokens.PromptTokens+stats.Tokens.CompletionTokens, stats.Tokens.TotalTokens)
	assert.Equal(t, int64(1), stats.Desk.Frames)
	assert.Equal(t, int64(1), stats.Snapshots.Writes)
	assert.Equal(t, int64(0), stats.Dispatch.Streams)

	startedAt, err := time.Parse(time.RFC3339, stats.StartedAt)
	require.NoError(t, err)
	assert.False(t, startedAt.After(time.Now()))
}

func TestStats_CountsFallbacksAndDegraded(t *testing.T) {
	mockLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer mockLLM.Close()

	cfg := gatewayConfig(t)
	cfg.Backends["primary"] = config.BackendConf{BaseURL: mockLLM.URL, Mode: "openai"}
	gwServer := newGatewayServer(t, cfg)

	resp, _ := postJSON(t, gwServer.URL+"/v1/chat/completions", `{
		"model": "primary",
		"messages": [{"role": "user", "content": "anyone there?"}]
	}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "degraded answers are 200s")

	resp, body := doRequest(t, http.MethodGet, gwServer.URL+"/stats", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats monitoring.StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))

	assert.Equal(t, int64(2), stats.Dispatch.Fallbacks, "secondary and relay were both tried")
	assert.Equal(t, int64(1), stats.Dispatch.Degraded)
	assert.Equal(t, int64(1), stats.Requests.Successful)
}
