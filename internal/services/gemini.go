package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/bobarin/iris/internal/models"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiPlanner plans segments through the Google Gen AI SDK with a JSON
// response type, so the model cannot reply with prose.
type GeminiPlanner struct {
	apiKey string
	model  string
}

var _ Planner = (*GeminiPlanner)(nil)

func NewGeminiPlanner(apiKey, model string) *GeminiPlanner {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiPlanner{apiKey: apiKey, model: model}
}

func (p *GeminiPlanner) PlanSegments(ctx context.Context, topic string, count int, jobContext string) ([]models.SegmentInput, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(buildPlanSystemPrompt(count), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
	}

	resp, err := client.Models.GenerateContent(ctx, p.model,
		genai.Text(buildPlanUserPrompt(topic, count, jobContext)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from gemini")
	}

	segments, err := parsePlan(raw, "gemini")
	if err != nil {
		return nil, err
	}

	if count > 0 && len(segments) != count {
		log.Printf("[Planner] gemini returned %d segments, requested %d (keeping the plan)", len(segments), count)
	}
	log.Printf("[Planner] gemini planned %d segments for topic %q", len(segments), topic)

	return segments, nil
}
