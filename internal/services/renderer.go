package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/iris/internal/models"
)

// ---------------------------------------------------------------------------
// Renderer clients
// Each visual category (animation, diagram, simulation) is served by its own
// HTTP renderer. All renderers speak the same two-endpoint contract:
//   POST {base}/preview-script  — returns the script that would run, no video
//   POST {base}/generate        — renders a clip onto the shared media volume
// A 422 from /generate means a script was produced but failed to execute;
// the body carries the script so it can be shown to the operator.
// ---------------------------------------------------------------------------

// PlanningError reports a failed script preview. No script exists yet, so
// the segment has nothing to carry forward.
type PlanningError struct {
	Detail string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("script preview failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("script preview failed: %s", e.Detail)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ExecutionError reports a render that produced a script but failed to run
// it. The script is preserved so the failing segment can still show what
// would have executed.
type ExecutionError struct {
	Detail string
	Script string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("render execution failed: %s", e.Detail)
}

// TimeoutError marks an external call that exceeded its deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RenderRequest is the body for both renderer endpoints. Metadata carries
// the segment's per-category params; Script is only set on /generate calls
// that replay a previewed script.
type RenderRequest struct {
	Description     string         `json:"description"`
	Title           string         `json:"title"`
	DurationSeconds float64        `json:"duration_seconds"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Script          string         `json:"script,omitempty"`
}

// RenderResult is a successful /generate response. VideoPath points into
// the media volume shared between this service and the renderers.
type RenderResult struct {
	VideoPath string  `json:"video_path"`
	Duration  float64 `json:"duration"`
	Script    string  `json:"script,omitempty"`
}

type previewResponse struct {
	Script string `json:"script"`
}

// rendererFailure is the 422 body from /generate.
type rendererFailure struct {
	Detail    string `json:"detail"`
	Script    string `json:"script"`
	ErrorType string `json:"error_type"`
}

// RenderClient talks to one category's renderer service. Preview and
// generate calls get separate timeout ceilings since a full render can run
// minutes longer than scripting.
type RenderClient struct {
	baseURL       string
	previewClient *http.Client
	renderClient  *http.Client
}

// NewRenderClient creates a client for the renderer at baseURL.
func NewRenderClient(baseURL string, previewTimeout, renderTimeout time.Duration) *RenderClient {
	return &RenderClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		previewClient: &http.Client{Timeout: previewTimeout},
		renderClient:  &http.Client{Timeout: renderTimeout},
	}
}

// PreviewScript asks the renderer what script it would execute for the
// request, without rendering anything.
func (c *RenderClient) PreviewScript(ctx context.Context, renderReq RenderRequest) (string, error) {
	body, status, err := c.post(ctx, c.previewClient, "/preview-script", renderReq)
	if err != nil {
		if deadlineExceeded(err) {
			return "", &TimeoutError{Op: "script preview", Timeout: c.previewClient.Timeout, Err: err}
		}
		return "", &PlanningError{Detail: "request failed", Err: err}
	}

	if status != http.StatusOK {
		return "", &PlanningError{Detail: fmt.Sprintf("renderer returned status %d: %s", status, truncateBody(body))}
	}

	var preview previewResponse
	if err := json.Unmarshal(body, &preview); err != nil {
		return "", &PlanningError{Detail: "failed to parse preview response", Err: err}
	}
	if preview.Script == "" {
		return "", &PlanningError{Detail: "preview response contained no script"}
	}

	return preview.Script, nil
}

// Generate renders a clip. When renderReq.Script is set the renderer
// executes that script instead of authoring a new one, so the render stays
// consistent with what a preview showed.
func (c *RenderClient) Generate(ctx context.Context, renderReq RenderRequest) (*RenderResult, error) {
	body, status, err := c.post(ctx, c.renderClient, "/generate", renderReq)
	if err != nil {
		if deadlineExceeded(err) {
			return nil, &TimeoutError{Op: "render", Timeout: c.renderClient.Timeout, Err: err}
		}
		return nil, fmt.Errorf("render request failed: %w", err)
	}

	if status == http.StatusUnprocessableEntity {
		var failure rendererFailure
		if err := json.Unmarshal(body, &failure); err != nil {
			return nil, &ExecutionError{Detail: truncateBody(body)}
		}
		detail := failure.Detail
		if failure.ErrorType != "" {
			detail = failure.ErrorType + ": " + detail
		}
		return nil, &ExecutionError{Detail: detail, Script: failure.Script}
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("renderer returned status %d: %s", status, truncateBody(body))
	}

	var result RenderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse render response: %w", err)
	}
	if result.VideoPath == "" {
		return nil, fmt.Errorf("render response contained no video path")
	}

	return &result, nil
}

func (c *RenderClient) post(ctx context.Context, client *http.Client, path string, payload any) ([]byte, int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func deadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func truncateBody(body []byte) string {
	const maxLen = 500
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// Renderers holds one client per visual category. Transitions have no
// renderer of their own: their overlay clips come from the Diagram service
// (the audio-reactive overlay is a templated diagram script).
type Renderers struct {
	Animation  Renderer
	Diagram    Renderer
	Simulation Renderer
}

// Renderer is the call surface of one category's client.
type Renderer interface {
	PreviewScript(ctx context.Context, renderReq RenderRequest) (string, error)
	Generate(ctx context.Context, renderReq RenderRequest) (*RenderResult, error)
}

var _ Renderer = (*RenderClient)(nil)

// NewRenderers builds clients for the three category endpoints.
func NewRenderers(animationURL, diagramURL, simulationURL string, previewTimeout, renderTimeout time.Duration) *Renderers {
	log.Printf("[Renderer] endpoints: animation=%s diagram=%s simulation=%s (preview %s, render %s)",
		animationURL, diagramURL, simulationURL, previewTimeout, renderTimeout)
	return &Renderers{
		Animation:  NewRenderClient(animationURL, previewTimeout, renderTimeout),
		Diagram:    NewRenderClient(diagramURL, previewTimeout, renderTimeout),
		Simulation: NewRenderClient(simulationURL, previewTimeout, renderTimeout),
	}
}

// For returns the client for a segment's visual category.
func (r *Renderers) For(t models.SegmentType) (Renderer, error) {
	switch t {
	case models.SegmentTypeAnimation:
		return r.Animation, nil
	case models.SegmentTypeDiagram:
		return r.Diagram, nil
	case models.SegmentTypeSimulation:
		return r.Simulation, nil
	default:
		return nil, fmt.Errorf("no renderer for segment type %q", t)
	}
}
