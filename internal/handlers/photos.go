package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ndelia/snaplens/internal/store"
)

// HandlePhotos serves the photo collection: GET lists history newest first,
// POST captures a new photo, DELETE clears all history. The clear is
// irreversible; the frontend asks for confirmation before sending it.
func (h *Handler) HandlePhotos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.store.List())
	case http.MethodPost:
		h.handleCapture(w, r)
	case http.MethodDelete:
		h.store.ClearAll()
		slog.Info("History cleared")
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCapture creates an item from an uploaded JPEG and kicks off analysis
// in the background. The response does not wait for the analysis: the item
// comes back immediately with analysis_pending set, and the frontend polls
// the item until the patch lands.
func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	image, err := decodeImagePayload(request.Image)
	if err != nil {
		h.writeError(w, "Invalid image payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(image)) > h.maxUploadBytes {
		h.writeError(w, fmt.Sprintf("Image too large (max %d bytes)", h.maxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	item := h.store.Create(image)
	slog.Info("Photo captured", "id", item.ID, "bytes", len(image))

	go h.runAnalysis(item.ID, image)

	h.writeJSON(w, http.StatusCreated, item)
}

// runAnalysis performs the one-shot background analysis for a freshly
// captured item. The patch is keyed by id and silently discarded if the item
// was cleared while the call was in flight.
func (h *Handler) runAnalysis(id string, image []byte) {
	result := h.analyzer.Analyze(context.Background(), image)

	done := false
	patched := h.store.Patch(id, store.Patch{
		Analysis:           result.Analysis,
		SuggestedQuestions: result.Suggestions,
		AnalysisPending:    &done,
	})
	if !patched {
		slog.Info("Discarding analysis for removed item", "id", id)
		return
	}
	slog.Info("Analysis complete", "id", id, "entity", result.Analysis != nil)
}

// HandlePhotoDetail routes /api/photos/{id}, /api/photos/{id}/image and
// /api/photos/{id}/ask.
func (h *Handler) HandlePhotoDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/photos/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		h.writeError(w, "Missing photo id", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		item, ok := h.store.Get(id)
		if !ok {
			h.writeError(w, "Photo not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, item)
	case "image":
		if r.Method != http.MethodGet {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		image, ok := h.store.Image(id)
		if !ok {
			h.writeError(w, "Photo not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		if _, err := w.Write(image); err != nil {
			slog.Error("Unable to write image response", "err", err)
		}
	case "ask":
		if r.Method != http.MethodPost {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleAsk(w, r, id)
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

// HandleActive tracks the item open in the detail view: GET re-derives the
// active item from the collection, PUT selects one, DELETE deselects.
func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		item, ok := h.store.Active()
		if !ok {
			h.writeError(w, "No active photo", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, item)
	case http.MethodPut:
		var request struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !h.store.Select(request.ID) {
			h.writeError(w, "Photo not found", http.StatusNotFound)
			return
		}
		item, _ := h.store.Get(request.ID)
		h.writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		h.store.Deselect()
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// decodeImagePayload accepts a base64 JPEG with or without a data-URL prefix
// and returns the raw bytes. The prefix is stripped before decoding so the
// stored payload is always plain JPEG.
func decodeImagePayload(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("image is required")
	}
	if strings.HasPrefix(s, "data:") {
		_, b64, found := strings.Cut(s, ";base64,")
		if !found {
			return nil, fmt.Errorf("unsupported data URL encoding")
		}
		s = b64
	}
	image, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return image, nil
}
