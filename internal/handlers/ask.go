package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ndelia/snaplens/internal/models"
)

// connectionErrorText is appended as a model turn when the Q&A call fails.
// The user retries by asking again.
const connectionErrorText = "Connection error. Please retry."

// handleAsk runs the chat sub-protocol for one item: append the user turn,
// call the Q&A client, then append exactly one model turn, either the
// grounded answer or the fixed connection-error message. The request blocks
// until the turn pair is complete and responds with the updated item.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request, id string) {
	var request struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.Question == "" {
		h.writeError(w, "question is required", http.StatusBadRequest)
		return
	}

	image, ok := h.store.Image(id)
	if !ok {
		h.writeError(w, "Photo not found", http.StatusNotFound)
		return
	}

	if !h.beginAsk(id) {
		h.writeError(w, "A question is already in flight for this photo", http.StatusConflict)
		return
	}
	defer h.endAsk(id)

	h.store.AppendTurn(id, models.ChatTurn{Role: models.RoleUser, Text: request.Question})

	answer, err := h.answerer.Ask(r.Context(), image, request.Question)
	if err != nil {
		slog.Error("Q&A request failed", "id", id, "err", err)
		h.store.AppendTurn(id, models.ChatTurn{Role: models.RoleModel, Text: connectionErrorText})
	} else {
		h.store.AppendTurn(id, models.ChatTurn{Role: models.RoleModel, Text: answer.Text, Sources: answer.Sources})
	}

	item, ok := h.store.Get(id)
	if !ok {
		// History was cleared while the answer was in flight.
		h.writeError(w, "Photo not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}
