package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ndelia/snaplens/internal/gemini"
	"github.com/ndelia/snaplens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxUpload = 10 * 1024 * 1024

// fakeAnalyzer returns a canned result, optionally blocking until gate is
// closed so tests can control when the background analysis lands.
type fakeAnalyzer struct {
	result gemini.AnalysisResult
	gate   chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, image []byte) gemini.AnalysisResult {
	if f.gate != nil {
		<-f.gate
	}
	return f.result
}

// fakeAnswerer returns a canned answer or error, optionally blocking.
type fakeAnswerer struct {
	answer  gemini.Answer
	err     error
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeAnswerer) Ask(ctx context.Context, image []byte, question string) (gemini.Answer, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.answer, f.err
}

func capturePayload(t *testing.T) []byte {
	t.Helper()
	image := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	body, err := json.Marshal(map[string]string{"image": "data:image/jpeg;base64," + image})
	require.NoError(t, err)
	return body
}

func capture(t *testing.T, h *Handler) models.CapturedItem {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader(capturePayload(t)))
	h.HandlePhotos(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var item models.CapturedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	return item
}

func eiffelResult() gemini.AnalysisResult {
	return gemini.AnalysisResult{
		Analysis: &models.SmartCard{
			Title:       "Eiffel Tower",
			Description: "A wrought-iron lattice tower in Paris.",
			Facts:       []models.Fact{{Label: "Height", Value: "330 m"}},
		},
		Suggestions: []string{"How tall is it?", "When was it built?", "Who designed it?"},
	}
}

func TestCaptureRunsBackgroundAnalysis(t *testing.T) {
	h := newHandler(&fakeAnalyzer{result: eiffelResult()}, &fakeAnswerer{}, testMaxUpload)

	item := capture(t, h)
	assert.True(t, item.AnalysisPending)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, fmt.Sprintf("/api/photos/%s/image", item.ID), item.ImageURL)

	require.Eventually(t, func() bool {
		got, ok := h.store.Get(item.ID)
		return ok && !got.AnalysisPending
	}, time.Second, 10*time.Millisecond)

	got, ok := h.store.Get(item.ID)
	require.True(t, ok)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "Eiffel Tower", got.Analysis.Title)
	assert.Len(t, got.SuggestedQuestions, 3)
}

func TestCaptureNonEntityLeavesCardAbsent(t *testing.T) {
	h := newHandler(&fakeAnalyzer{result: gemini.AnalysisResult{
		Suggestions: []string{"What is this?", "Tell me more", "Search for details"},
	}}, &fakeAnswerer{}, testMaxUpload)

	item := capture(t, h)

	require.Eventually(t, func() bool {
		got, ok := h.store.Get(item.ID)
		return ok && !got.AnalysisPending
	}, time.Second, 10*time.Millisecond)

	got, ok := h.store.Get(item.ID)
	require.True(t, ok)
	assert.Nil(t, got.Analysis)
	assert.Equal(t, []string{"What is this?", "Tell me more", "Search for details"}, got.SuggestedQuestions)
}

func TestClearDuringPendingAnalysis(t *testing.T) {
	gate := make(chan struct{})
	h := newHandler(&fakeAnalyzer{result: eiffelResult(), gate: gate}, &fakeAnswerer{}, testMaxUpload)

	capture(t, h)

	rec := httptest.NewRecorder()
	h.HandlePhotos(rec, httptest.NewRequest(http.MethodDelete, "/api/photos", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Let the in-flight analysis land; the guarded patch must not revive the
	// cleared item.
	close(gate)
	assert.Never(t, func() bool {
		return len(h.store.List()) > 0
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestCaptureRejectsBadPayloads(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, testMaxUpload)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", "nope", http.StatusBadRequest},
		{"empty image", `{"image": ""}`, http.StatusBadRequest},
		{"bad base64", `{"image": "!!!"}`, http.StatusBadRequest},
		{"bad data url", `{"image": "data:image/jpeg;base32,abc"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader([]byte(tt.body)))
			h.HandlePhotos(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestCaptureRejectsOversizedImage(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, 8)

	image := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 64))
	body, err := json.Marshal(map[string]string{"image": image})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader(body))
	h.HandlePhotos(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func ask(t *testing.T, h *Handler, id, question string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"question": question})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/photos/"+id+"/ask", bytes.NewReader(body))
	h.HandlePhotoDetail(rec, req)
	return rec
}

func TestAskAppendsTurnPair(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{answer: gemini.Answer{
		Text:    "It opened in 1889.",
		Sources: []models.Source{{Title: "Wikipedia", URI: "https://en.wikipedia.org/wiki/Eiffel_Tower"}},
	}}, testMaxUpload)

	item := capture(t, h)
	rec := ask(t, h, item.ID, "When did it open?")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.CapturedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.ChatTurns, 2)
	assert.Equal(t, models.RoleUser, got.ChatTurns[0].Role)
	assert.Equal(t, "When did it open?", got.ChatTurns[0].Text)
	assert.Equal(t, models.RoleModel, got.ChatTurns[1].Role)
	assert.Equal(t, "It opened in 1889.", got.ChatTurns[1].Text)
	require.Len(t, got.ChatTurns[1].Sources, 1)
	assert.Equal(t, "Wikipedia", got.ChatTurns[1].Sources[0].Title)
}

func TestAskTwiceInterleavesTurns(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{answer: gemini.Answer{Text: "answer"}}, testMaxUpload)

	item := capture(t, h)
	require.Equal(t, http.StatusOK, ask(t, h, item.ID, "first?").Code)
	require.Equal(t, http.StatusOK, ask(t, h, item.ID, "second?").Code)

	got, ok := h.store.Get(item.ID)
	require.True(t, ok)
	require.Len(t, got.ChatTurns, 4)
	assert.Equal(t, []string{models.RoleUser, models.RoleModel, models.RoleUser, models.RoleModel}, []string{
		got.ChatTurns[0].Role, got.ChatTurns[1].Role, got.ChatTurns[2].Role, got.ChatTurns[3].Role,
	})
}

func TestAskFailureAppendsErrorTurn(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{err: fmt.Errorf("connection reset")}, testMaxUpload)

	item := capture(t, h)
	rec := ask(t, h, item.ID, "What is this?")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.CapturedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.ChatTurns, 2)
	assert.Equal(t, "What is this?", got.ChatTurns[0].Text)
	assert.Equal(t, models.RoleModel, got.ChatTurns[1].Role)
	assert.Equal(t, connectionErrorText, got.ChatTurns[1].Text)
	assert.Empty(t, got.ChatTurns[1].Sources)
}

func TestAskRejectsOverlappingQuestions(t *testing.T) {
	gate := make(chan struct{})
	answerer := &fakeAnswerer{answer: gemini.Answer{Text: "slow answer"}, gate: gate, started: make(chan struct{})}
	h := newHandler(&fakeAnalyzer{}, answerer, testMaxUpload)

	item := capture(t, h)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec := ask(t, h, item.ID, "slow question")
		assert.Equal(t, http.StatusOK, rec.Code)
	}()

	<-answerer.started
	rec := ask(t, h, item.ID, "overlapping question")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(gate)
	wg.Wait()

	// Only the first question produced a turn pair.
	got, ok := h.store.Get(item.ID)
	require.True(t, ok)
	assert.Len(t, got.ChatTurns, 2)
}

func TestAskValidation(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, testMaxUpload)
	item := capture(t, h)

	assert.Equal(t, http.StatusBadRequest, ask(t, h, item.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, ask(t, h, "missing-id", "hi").Code)
}

func TestPhotoDetailRoutes(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, testMaxUpload)
	item := capture(t, h)

	// GET item
	rec := httptest.NewRecorder()
	h.HandlePhotoDetail(rec, httptest.NewRequest(http.MethodGet, "/api/photos/"+item.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// GET image bytes
	rec = httptest.NewRecorder()
	h.HandlePhotoDetail(rec, httptest.NewRequest(http.MethodGet, "/api/photos/"+item.ID+"/image", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, rec.Body.Bytes())

	// Unknown item
	rec = httptest.NewRecorder()
	h.HandlePhotoDetail(rec, httptest.NewRequest(http.MethodGet, "/api/photos/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown subresource
	rec = httptest.NewRecorder()
	h.HandlePhotoDetail(rec, httptest.NewRequest(http.MethodGet, "/api/photos/"+item.ID+"/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNewestFirst(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, testMaxUpload)
	first := capture(t, h)
	second := capture(t, h)

	rec := httptest.NewRecorder()
	h.HandlePhotos(rec, httptest.NewRequest(http.MethodGet, "/api/photos", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.CapturedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestActiveLifecycle(t *testing.T) {
	h := newHandler(&fakeAnalyzer{}, &fakeAnswerer{}, testMaxUpload)
	first := capture(t, h)
	second := capture(t, h)

	// Capture marks the new item active.
	rec := httptest.NewRecorder()
	h.HandleActive(rec, httptest.NewRequest(http.MethodGet, "/api/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var active models.CapturedItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, second.ID, active.ID)

	// Select the older item.
	body, _ := json.Marshal(map[string]string{"id": first.ID})
	rec = httptest.NewRecorder()
	h.HandleActive(rec, httptest.NewRequest(http.MethodPut, "/api/active", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	// Deselect.
	rec = httptest.NewRecorder()
	h.HandleActive(rec, httptest.NewRequest(http.MethodDelete, "/api/active", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleActive(rec, httptest.NewRequest(http.MethodGet, "/api/active", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecodeImagePayload(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0x01}
	b64 := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"bare base64", b64, raw, false},
		{"jpeg data url", "data:image/jpeg;base64," + b64, raw, false},
		{"png data url", "data:image/png;base64," + b64, raw, false},
		{"empty", "", nil, true},
		{"data url without base64 marker", "data:image/jpeg," + b64, nil, true},
		{"invalid base64", "%%%", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeImagePayload(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
