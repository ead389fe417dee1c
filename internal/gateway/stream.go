package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/adapters"
	"github.com/relaydesk/model-gateway/internal/backends"
	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/upstream"
)

// streamPassthrough pipes a passthrough backend's streaming response to
// the client unmodified. The executor still retries to acquire the stream,
// but once bytes flow there is no fallback: a broken stream cannot be
// replayed against another tier without duplicating upstream side effects.
func (g *Gateway) streamPassthrough(w http.ResponseWriter, r *http.Request, d backends.Descriptor, creq *adapters.CanonicalRequest) {
	adapter, err := adapters.ForMode(d.Mode)
	if err != nil {
		g.metrics.RecordRequest(false)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	breq, err := adapter.BuildRequest(d, creq)
	if err != nil {
		g.metrics.RecordRequest(false)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := g.exec.Stream(r.Context(), &upstream.Request{
		URL:    breq.URL,
		Header: breq.Header,
		Body:   breq.Body,
		Label:  d.Name,
	})
	if err != nil {
		g.metrics.RecordRequest(false)
		g.metrics.RecordUpstreamError()
		g.writeStreamError(w, d, err)
		return
	}
	defer resp.Body.Close()

	g.metrics.RecordRequest(true)
	g.metrics.RecordStream()

	copyStreamHeaders(w, resp.Header)
	w.Header().Set("X-Gateway-Backend", d.Name)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				log.Debug().Err(werr).Msg("client disconnected during stream")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("error reading upstream stream")
			}
			return
		}
	}
}

// writeStreamError reports a failure to acquire the upstream stream.
func (g *Gateway) writeStreamError(w http.ResponseWriter, d backends.Descriptor, err error) {
	terr := &tierError{tier: d.Name, err: err}
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		terr.status = httpErr.Status
		terr.body = httpErr.Body
	}
	log.Error().Str("backend", d.Name).Err(err).Msg("failed to open upstream stream")
	derr := terminalFailure(terr, nil)
	writeJSON(w, derr.status, derr.resp)
}

// copyStreamHeaders forwards the upstream's streaming headers, defaulting
// to SSE when the upstream did not label its stream.
func copyStreamHeaders(w http.ResponseWriter, src http.Header) {
	contentType := src.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if v := src.Get("X-Accel-Buffering"); v != "" {
		w.Header().Set("X-Accel-Buffering", v)
	}
}
