package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ndelia/snaplens/internal/config"
	"github.com/ndelia/snaplens/internal/gemini"
	"github.com/ndelia/snaplens/internal/store"
)

// Analyzer identifies a photo's subject. Implementations must not fail; a
// degraded result stands in for any error.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) gemini.AnalysisResult
}

// Answerer answers a question about a photo. Errors propagate so the handler
// can record a visible connection-error turn.
type Answerer interface {
	Ask(ctx context.Context, image []byte, question string) (gemini.Answer, error)
}

// Handler owns the session store and drives the capture → analyze → chat flow
// over HTTP. It is the only writer to the store.
type Handler struct {
	store          *store.SessionStore
	analyzer       Analyzer
	answerer       Answerer
	maxUploadBytes int64

	// askMu guards asking, the set of item ids with a question in flight.
	// At most one question per item at a time.
	askMu  sync.Mutex
	asking map[string]struct{}
}

func New(cfg *config.Config) *Handler {
	client := gemini.New(cfg.GeminiAPIKey, cfg.Model)
	return newHandler(client, client, cfg.MaxUploadBytes)
}

func newHandler(analyzer Analyzer, answerer Answerer, maxUploadBytes int64) *Handler {
	return &Handler{
		store:          store.New(),
		analyzer:       analyzer,
		answerer:       answerer,
		maxUploadBytes: maxUploadBytes,
		asking:         make(map[string]struct{}),
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

func (h *Handler) beginAsk(id string) bool {
	h.askMu.Lock()
	defer h.askMu.Unlock()
	if _, inFlight := h.asking[id]; inFlight {
		return false
	}
	h.asking[id] = struct{}{}
	return true
}

func (h *Handler) endAsk(id string) {
	h.askMu.Lock()
	defer h.askMu.Unlock()
	delete(h.asking, id)
}
