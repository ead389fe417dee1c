// Package gateway - snapshot.go serves the backup/restore surface.
//
// Payloads are forwarded byte-for-byte between HTTP and the snapshot
// store; the gateway never parses them.
package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/model-gateway/internal/snapshot"
)

func (g *Gateway) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	infos, err := g.snapshots.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("listing snapshots failed")
		writeError(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}
	if infos == nil {
		infos = []snapshot.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": infos,
		"count":     len(infos),
	})
}

// handleSnapshotSave stores the raw request body under the path name,
// replacing any previous payload.
func (g *Gateway) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(g.cfg.Snapshot.Cap())+1))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, snapshot.ErrTooLarge.Error())
		return
	}

	err = g.snapshots.Save(r.Context(), name, r.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, snapshot.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("snapshot", name).Msg("saving snapshot failed")
		writeError(w, http.StatusInternalServerError, "saving snapshot failed")
		return
	}

	g.metrics.RecordSnapshotWrite()
	log.Info().Str("snapshot", name).Int("size", len(data)).Msg("snapshot saved")
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "size": len(data)})
}

// handleSnapshotLoad returns the stored payload with the content type it
// was saved under.
func (g *Gateway) handleSnapshotLoad(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, contentType, err := g.snapshots.Load(r.Context(), name)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("snapshot", name).Msg("loading snapshot failed")
		writeError(w, http.StatusInternalServerError, "loading snapshot failed")
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (g *Gateway) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := g.snapshots.Delete(r.Context(), name)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("snapshot", name).Msg("deleting snapshot failed")
		writeError(w, http.StatusInternalServerError, "deleting snapshot failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
