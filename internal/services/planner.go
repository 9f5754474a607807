package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/iris/internal/models"
)

// ---------------------------------------------------------------------------
// Segment planner
// Turns a free-text topic into an ordered list of segment drafts. Two
// providers implement the interface: Gemini (preferred) and OpenAI. Both
// share the prompt and the strict JSON parsing below, so swapping providers
// never changes what a valid plan looks like.
// ---------------------------------------------------------------------------

// Planner produces segment drafts for a topic. count is the requested
// number of segments (0 lets the model choose); jobContext is free text
// carried on the job that should inform the narrative.
type Planner interface {
	PlanSegments(ctx context.Context, topic string, count int, jobContext string) ([]models.SegmentInput, error)
}

// plannedSegments is the JSON document the model must return.
type plannedSegments struct {
	Segments []models.SegmentInput `json:"segments"`
}

const maxPlanLogLen = 2000

// parsePlan decodes and validates a model response. Every problem on every
// segment is collected before failing, so one round trip surfaces the whole
// defect list.
func parsePlan(raw string, tag string) ([]models.SegmentInput, error) {
	cleaned := stripCodeFence(raw)

	var plan plannedSegments
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		logRawPlan(tag, raw)
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	if len(plan.Segments) == 0 {
		logRawPlan(tag, raw)
		return nil, fmt.Errorf("plan has no segments")
	}

	var problems []string
	for i, seg := range plan.Segments {
		var missing []string
		if seg.Type == "" {
			missing = append(missing, "type")
		} else if !models.ValidSegmentType(seg.Type) {
			problems = append(problems, fmt.Sprintf("segment %d has unknown type %q", i, seg.Type))
		}
		if strings.TrimSpace(seg.Title) == "" {
			missing = append(missing, "title")
		}
		if strings.TrimSpace(seg.Description) == "" {
			missing = append(missing, "description")
		}
		if seg.Type == models.SegmentTypeTransition && (seg.Voiceover == nil || !seg.Voiceover.HasText()) {
			missing = append(missing, "voiceover.text (transitions are narration-driven)")
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("segment %d missing required fields: %v", i, missing))
		}
	}
	if len(problems) > 0 {
		logRawPlan(tag, raw)
		return nil, fmt.Errorf("invalid plan: %s", strings.Join(problems, "; "))
	}

	return plan.Segments, nil
}

// stripCodeFence removes a surrounding markdown fence if the model wrapped
// its JSON in one despite the response-format instructions.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func logRawPlan(tag, raw string) {
	if len(raw) > maxPlanLogLen {
		log.Printf("[Planner] %s raw response (truncated): %s...", tag, raw[:maxPlanLogLen])
		return
	}
	log.Printf("[Planner] %s raw response: %s", tag, raw)
}

func buildPlanSystemPrompt(count int) string {
	segmentCountLine := "Choose a natural number of segments for the topic, usually 4-7."
	if count > 0 {
		segmentCountLine = fmt.Sprintf("Produce exactly %d segments.", count)
	}

	return fmt.Sprintf(`You are an expert documentary planner for a narrated educational video service.

Your task is to decompose a topic into an ordered sequence of video segments. Each segment is one visual+narration beat; the segments play back-to-back as one continuous video.

%s

SEGMENT TYPES - pick the one that fits each beat:
- "animation": cinematic generated footage. Use for scene-setting, physical subjects, atmosphere.
- "diagram": animated technical diagrams. Use for structure, relationships, flows, labeled parts.
- "simulation": physics or process simulations. Use for dynamic systems evolving over time.
- "transition": a short narrated bridge between two beats (a frozen frame of the previous segment with a reactive overlay). Use sparingly, between major chapters.

WRITING PROCESS - THINK LIKE A STORYTELLER, NOT A SEGMENT MACHINE:
Before writing any individual segment, compose the ENTIRE narrative as one flowing story. What hooks the viewer? What is the journey? What is the payoff? Only then divide it into segments. Read all voiceover texts back-to-back: they must sound like one person telling one cohesive story.

VOICEOVER - CRITICAL (read aloud by text-to-speech):
- Write to be LISTENED to, not read. Short, punchy sentences. Contractions.
- 2-3 sentences per segment, roughly 10 seconds of speech. Transitions get ONE sentence.
- No jargon walls, no parenthetical asides that trip up speech synthesis.
- Vary the emotional register across segments; build, release, build again.

DESCRIPTION - what the renderer generates:
- A complete, self-contained description of the visuals for that segment.
- For diagrams: name the components and the relationships to show.
- For simulations: name the system, its parameters, and what changes over time.
- For animation: subject, setting, lighting, camera movement.
- Never reference other segments ("as before", "the previous scene").

ALL FIELDS ARE REQUIRED - DO NOT LEAVE ANY FIELD EMPTY:
- type: one of "animation", "diagram", "simulation", "transition". NEVER empty.
- title: short label for the segment. NEVER empty.
- description: full visual description as above. NEVER empty.
- voiceover: {"text": ..., "voice": "Schedar", "speed": 1.35}. Required for transitions; strongly preferred everywhere else.

Respond with JSON only, matching exactly:
{"segments": [{"type": "...", "title": "...", "description": "...", "voiceover": {"text": "...", "voice": "Schedar", "speed": 1.35}}]}`,
		segmentCountLine)
}

func buildPlanUserPrompt(topic string, count int, jobContext string) string {
	prompt := fmt.Sprintf("Plan the segments for a narrated video about: %q", topic)
	if count > 0 {
		prompt += fmt.Sprintf("\n\nSegment count: %d", count)
	}
	if strings.TrimSpace(jobContext) != "" {
		prompt += fmt.Sprintf("\n\nAdditional context:\n%s", jobContext)
	}
	return prompt
}
