package services

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/iris/internal/models"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIPlanner plans segments through OpenAI chat completions in JSON
// mode. It is the fallback provider when no Gemini key is configured.
type OpenAIPlanner struct {
	client *openai.Client
	model  string
}

var _ Planner = (*OpenAIPlanner)(nil)

func NewOpenAIPlanner(apiKey, model string) *OpenAIPlanner {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIPlanner{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIPlanner) PlanSegments(ctx context.Context, topic string, count int, jobContext string) ([]models.SegmentInput, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildPlanSystemPrompt(count),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPlanUserPrompt(topic, count, jobContext),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	segments, err := parsePlan(resp.Choices[0].Message.Content, "openai")
	if err != nil {
		return nil, err
	}

	if count > 0 && len(segments) != count {
		log.Printf("[Planner] openai returned %d segments, requested %d (keeping the plan)", len(segments), count)
	}
	log.Printf("[Planner] openai planned %d segments for topic %q", len(segments), topic)

	return segments, nil
}
