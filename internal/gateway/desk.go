// Package gateway - desk.go serves the remote desk session surface.
//
// Sessions are created and torn down over REST; frames move through
// PUT/GET round-trips, and /watch upgrades to a websocket that pushes
// each new frame as it lands.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/desk"
)

type deskCreateRequest struct {
	Meta map[string]string `json:"meta"`
}

// handleDeskCreate registers a new desk session. The body is optional;
// when present it may carry a meta map of client-chosen labels.
func (g *Gateway) handleDeskCreate(w http.ResponseWriter, r *http.Request) {
	var req deskCreateRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	sess := g.desk.Create(req.Meta)
	log.Info().Str("session_id", sess.ID).Msg("desk session created")
	writeJSON(w, http.StatusCreated, sess)
}

func (g *Gateway) handleDeskList(w http.ResponseWriter, r *http.Request) {
	sessions := g.desk.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (g *Gateway) handleDeskGet(w http.ResponseWriter, r *http.Request) {
	sess, err := g.desk.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (g *Gateway) handleDeskDelete(w http.ResponseWriter, r *http.Request) {
	g.desk.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleDeskPushFrame replaces the session's latest frame with the raw
// request body. The Content-Type header travels with the frame.
func (g *Gateway) handleDeskPushFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(g.cfg.Desk.FrameCap())+1))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, desk.ErrFrameTooLarge.Error())
		return
	}

	seq, err := g.desk.PushFrame(id, r.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, desk.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, desk.ErrFrameTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.metrics.RecordDeskFrame()
	writeJSON(w, http.StatusOK, map[string]any{"seq": seq})
}

// handleDeskLatestFrame returns the latest frame's raw bytes, with the
// sequence number in X-Desk-Frame-Seq.
func (g *Gateway) handleDeskLatestFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := g.desk.LatestFrame(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if frame.Seq == 0 {
		writeError(w, http.StatusNotFound, "no frame pushed yet")
		return
	}

	contentType := frame.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Desk-Frame-Seq", strconv.FormatInt(frame.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Data)
}

// handleDeskWatch upgrades to a websocket and pushes each new frame as a
// JSON event. The feed polls the frame sequence rather than hooking the
// store, so a watcher can never block a writer.
func (g *Gateway) handleDeskWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := g.desk.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Debug().Err(err).Str("session_id", id).Msg("desk watch upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(config.WatchPollInterval)
	defer ticker.Stop()

	var lastSeq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := g.desk.LatestFrame(id)
		if err != nil {
			// Session deleted or expired while being watched.
			conn.Close(websocket.StatusNormalClosure, "session closed")
			return
		}
		if frame.Seq == lastSeq {
			continue
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			log.Debug().Err(err).Str("session_id", id).Msg("desk watcher disconnected")
			return
		}
		lastSeq = frame.Seq
	}
}
