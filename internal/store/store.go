package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ndelia/snaplens/internal/models"
)

// SessionStore holds the ordered collection of captured items for the current
// session, newest first, plus the identifier of the currently active item.
// It is the only place item state is mutated. Every read hands out a deep
// copy and every write swaps in a fresh item value, so snapshots held by
// callers never change underneath them. History lives in memory only and is
// lost when the process exits.
type SessionStore struct {
	mu     sync.RWMutex
	items  []*entry
	active string
}

type entry struct {
	item  models.CapturedItem
	image []byte
}

// Patch carries the fields a patch operation may merge into an item.
// Nil fields are left untouched.
type Patch struct {
	Analysis           *models.SmartCard
	SuggestedQuestions []string
	AnalysisPending    *bool
}

func New() *SessionStore {
	return &SessionStore{}
}

// Create inserts a new item at the head of the collection, marks it active,
// and returns a snapshot of it. The image bytes are retained verbatim for
// the lifetime of the item and never mutated.
func (s *SessionStore) Create(image []byte) models.CapturedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	e := &entry{
		item: models.CapturedItem{
			ID:                 id,
			ImageURL:           fmt.Sprintf("/api/photos/%s/image", id),
			CapturedAt:         time.Now(),
			SuggestedQuestions: []string{},
			AnalysisPending:    true,
			ChatTurns:          []models.ChatTurn{},
		},
		image: image,
	}

	s.items = append([]*entry{e}, s.items...)
	s.active = id
	return cloneItem(e.item)
}

// Patch merges the given fields into the item matching id. It reports whether
// the item was found; a missing id is a no-op, not an error, which makes late
// analysis callbacks after ClearAll harmless.
func (s *SessionStore) Patch(id string, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	next := cloneItem(s.items[i].item)
	if p.Analysis != nil {
		next.Analysis = p.Analysis
	}
	if p.SuggestedQuestions != nil {
		next.SuggestedQuestions = p.SuggestedQuestions
	}
	if p.AnalysisPending != nil {
		next.AnalysisPending = *p.AnalysisPending
	}
	s.items[i] = &entry{item: next, image: s.items[i].image}
	return true
}

// AppendTurn appends one turn to the item's chat transcript, preserving
// order. Same existence guard as Patch.
func (s *SessionStore) AppendTurn(id string, turn models.ChatTurn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	next := cloneItem(s.items[i].item)
	next.ChatTurns = append(next.ChatTurns, turn)
	s.items[i] = &entry{item: next, image: s.items[i].image}
	return true
}

// ClearAll empties the collection and clears the active identifier.
// Irreversible; interactive confirmation happens upstream.
func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.active = ""
}

// Select marks the item matching id as active. It reports whether the item
// exists; selection of a missing id leaves the active pointer unchanged.
func (s *SessionStore) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return false
	}
	s.active = id
	return true
}

// Deselect clears the active identifier without touching any item.
func (s *SessionStore) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
}

// Get returns a snapshot of the item matching id.
func (s *SessionStore) Get(id string) (models.CapturedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.CapturedItem{}, false
	}
	return cloneItem(s.items[i].item), true
}

// Active re-derives the active item from the collection. The active pointer
// is only ever an identifier; there is no second copy to drift out of sync.
func (s *SessionStore) Active() (models.CapturedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return models.CapturedItem{}, false
	}
	i := s.indexOf(s.active)
	if i < 0 {
		return models.CapturedItem{}, false
	}
	return cloneItem(s.items[i].item), true
}

// List returns snapshots of all items, newest first.
func (s *SessionStore) List() []models.CapturedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CapturedItem, len(s.items))
	for i, e := range s.items {
		out[i] = cloneItem(e.item)
	}
	return out
}

// Image returns the stored image bytes for the item matching id.
func (s *SessionStore) Image(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return s.items[i].image, true
}

// indexOf must be called with the lock held.
func (s *SessionStore) indexOf(id string) int {
	for i, e := range s.items {
		if e.item.ID == id {
			return i
		}
	}
	return -1
}

func cloneItem(it models.CapturedItem) models.CapturedItem {
	out := it
	if it.Analysis != nil {
		card := *it.Analysis
		card.Facts = append([]models.Fact(nil), it.Analysis.Facts...)
		out.Analysis = &card
	}
	out.SuggestedQuestions = append([]string{}, it.SuggestedQuestions...)
	out.ChatTurns = make([]models.ChatTurn, len(it.ChatTurns))
	for i, turn := range it.ChatTurns {
		turn.Sources = append([]models.Source(nil), turn.Sources...)
		out.ChatTurns[i] = turn
	}
	return out
}
