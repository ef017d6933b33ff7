package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/ndelia/snaplens/internal/models"
	"google.golang.org/api/option"
)

// AnalysisResult is what image analysis produces. Analysis is nil when the
// subject was not judged a specific, well-known entity; Suggestions is always
// non-empty.
type AnalysisResult struct {
	Analysis    *models.SmartCard
	Suggestions []string
}

const analyzePrompt = `Analyze this image precisely.
Return a JSON object with:
1. "isEntity": true only if the image depicts a specific, well-known, nameable
   subject (e.g. "iPhone 14 Pro", "Eiffel Tower", "Monstera Deliciosa"), false
   for generic or unidentifiable subjects.
2. "title": the specific name of the object, landmark, or subject.
3. "description": a concise, 1-sentence description.
4. "facts": an array of 3-4 key technical or historical facts (label/value pairs).
5. "suggestions": 3 distinct, short questions a user might ask about this, tailored
   to the apparent content (e.g. solving steps for a math problem, care
   instructions for a plant).`

// analysisSchema constrains the model to the response shape parseAnalysis expects.
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isEntity":    {Type: genai.TypeBoolean},
		"title":       {Type: genai.TypeString},
		"description": {Type: genai.TypeString},
		"facts": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label": {Type: genai.TypeString},
					"value": {Type: genai.TypeString},
				},
			},
		},
		"suggestions": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
}

// FallbackSuggestions is the fixed question list used when analysis fails
// outright. Returned as a fresh slice so callers can own it.
func FallbackSuggestions() []string {
	return []string{"Identify this object", "What functions does this have?", "Is this dangerous?"}
}

// defaultSuggestions fills in for a successful response that carried no
// suggestions field at all.
func defaultSuggestions() []string {
	return []string{"What is this?", "Tell me more", "Search for details"}
}

// Analyze identifies the subject of a JPEG image and proposes follow-up
// questions. It never returns an error: any failure is logged and degraded to
// a result with no smart card and the fallback suggestions.
func (c *Client) Analyze(ctx context.Context, image []byte) AnalysisResult {
	result, err := c.analyze(ctx, image)
	if err != nil {
		slog.Warn("Image analysis failed, using fallback suggestions", "err", err)
		return AnalysisResult{Suggestions: FallbackSuggestions()}
	}
	return result
}

func (c *Client) analyze(ctx context.Context, image []byte) (AnalysisResult, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = analysisSchema

	resp, err := model.GenerateContent(ctx,
		genai.Text(analyzePrompt),
		genai.ImageData("jpeg", image),
	)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return AnalysisResult{}, fmt.Errorf("empty response from Gemini")
	}

	var raw strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}

	return parseAnalysis(raw.String())
}

// parseAnalysis maps the model's JSON into an AnalysisResult, treating every
// field as optional. The smart card is omitted entirely unless isEntity is
// true; missing title/description get placeholder text, missing facts an
// empty list, missing suggestions the default list.
func parseAnalysis(raw string) (AnalysisResult, error) {
	var payload struct {
		IsEntity    bool          `json:"isEntity"`
		Title       string        `json:"title"`
		Description string        `json:"description"`
		Facts       []models.Fact `json:"facts"`
		Suggestions []string      `json:"suggestions"`
	}

	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	result := AnalysisResult{Suggestions: payload.Suggestions}
	if result.Suggestions == nil {
		result.Suggestions = defaultSuggestions()
	}

	if payload.IsEntity {
		card := &models.SmartCard{
			Title:       payload.Title,
			Description: payload.Description,
			Facts:       payload.Facts,
		}
		if card.Title == "" {
			card.Title = "Unknown object"
		}
		if card.Description == "" {
			card.Description = "No description available."
		}
		if card.Facts == nil {
			card.Facts = []models.Fact{}
		}
		result.Analysis = card
	}

	return result, nil
}

// stripFences trims markdown code fences some models wrap JSON bodies in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
