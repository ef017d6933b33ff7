package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ndelia/snaplens/internal/models"
)

// Answer is a grounded response to a question about an image.
type Answer struct {
	Text    string
	Sources []models.Source
}

const noAnswerText = "I couldn't find an answer."

// request types mirror the Gemini v1beta generateContent REST structure.
type generateRequest struct {
	Contents []requestContent `json:"contents"`
	Tools    []requestTool    `json:"tools,omitempty"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type requestTool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
	} `json:"candidates"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *webSource `json:"web"`
}

type webSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Ask answers a free-text question about a JPEG image using search grounding.
// Unlike Analyze, failures propagate so the caller can surface a visible
// connection error instead of a fabricated answer.
func (c *Client) Ask(ctx context.Context, image []byte, question string) (Answer, error) {
	prompt := fmt.Sprintf("Answer this question about the image. Be extremely brief, concise, and direct. Max 2-3 sentences. Question: %s", question)

	body := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: prompt},
				{InlineData: &inlineData{
					MIMEType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		Tools: []requestTool{{}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Answer{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return Answer{}, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, errBody)
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Answer{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Candidates) == 0 {
		return Answer{}, fmt.Errorf("no candidates returned from gemini")
	}

	candidate := response.Candidates[0]

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}

	answer := Answer{Text: text.String()}
	if answer.Text == "" {
		answer.Text = noAnswerText
	}
	if candidate.GroundingMetadata != nil {
		answer.Sources = extractSources(candidate.GroundingMetadata.GroundingChunks)
	}

	return answer, nil
}

// extractSources keeps only the grounding chunks that reference a web source,
// in their original order.
func extractSources(chunks []groundingChunk) []models.Source {
	var sources []models.Source
	for _, chunk := range chunks {
		if chunk.Web == nil {
			continue
		}
		sources = append(sources, models.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}
