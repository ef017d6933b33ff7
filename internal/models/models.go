package models

import "time"

// CapturedItem is one scanned photo plus everything derived from it: the
// analysis result, suggested questions, and the chat transcript. The image
// bytes themselves are held by the session store and served separately; the
// JSON shape only carries a URL for them.
type CapturedItem struct {
	ID                 string     `json:"id"`
	ImageURL           string     `json:"image_url"`
	CapturedAt         time.Time  `json:"captured_at"`
	Analysis           *SmartCard `json:"analysis,omitempty"`
	SuggestedQuestions []string   `json:"suggested_questions"`
	AnalysisPending    bool       `json:"analysis_pending"`
	ChatTurns          []ChatTurn `json:"chat_turns"`
}

// SmartCard is the structured identification result for a photo whose subject
// was judged a specific, nameable entity. It is absent, not empty, for
// generic subjects.
type SmartCard struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Facts       []Fact `json:"facts"`
}

// Fact is one label/value pair on a smart card.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Turn roles in a chat transcript.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatTurn is a single entry in an item's chat transcript. Model turns may
// carry web citations from search grounding.
type ChatTurn struct {
	Role    string   `json:"role"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// Source is a cited web source attached to a grounded answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
