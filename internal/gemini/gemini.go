// Package gemini holds the two inference clients snaplens uses: Analyze, which
// identifies the subject of a photo and proposes follow-up questions, and Ask,
// which answers free-text questions about a photo with search grounding.
//
// The two have deliberately different failure contracts. Analyze never fails:
// any error degrades to a result with no smart card and a fixed fallback
// question list, so a broken network only costs the user the card. Ask
// propagates errors so the caller can show a visible connection-error turn
// instead of a fabricated answer.
package gemini

import (
	"net/http"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client calls the Gemini API. The structured analysis path goes through the
// generative-ai-go SDK; the grounded Q&A path calls the v1beta REST endpoint
// directly because the SDK does not expose the google_search tool or the
// grounding chunks on the response.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the given model. An empty API key is accepted;
// requests made with it fail at call time.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}
