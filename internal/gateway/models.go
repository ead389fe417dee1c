package gateway

import (
	"net/http"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleModels lists every model identifier in the routing table in the
// OpenAI /v1/models shape, so SDK clients can discover what to send.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	created := g.metrics.StartedAt().Unix()
	ids := g.registry.Models()
	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "model-gateway",
		})
	}
	writeJSON(w, http.StatusOK, list)
}
