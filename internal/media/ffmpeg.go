// Package media drives ffmpeg/ffprobe subprocesses for every
// composition step: duration matching, crossfades, transition
// compositing, audio/video muxing and final assembly.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ToolError reports a nonzero ffmpeg/ffprobe exit. The captured stderr
// is part of the message so diagnostics are never lost.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Engine runs the media tool pipeline inside a Workspace.
type Engine struct {
	ffmpeg  string
	ffprobe string
	ws      *Workspace
}

func NewEngine(ws *Workspace, ffmpegPath, ffprobePath string) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Engine{ffmpeg: ffmpegPath, ffprobe: ffprobePath, ws: ws}
}

func (e *Engine) Workspace() *Workspace { return e.ws }

// run executes ffmpeg with the given arguments, capturing stderr for
// the error path. Callers pass "-y" and the output path themselves.
func (e *Engine) run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, e.ffmpeg, full...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: "ffmpeg", Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// probe executes ffprobe and returns trimmed stdout.
func (e *Engine) probeOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.ffprobe, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ToolError{Tool: "ffprobe", Args: args, Stderr: stderr.String(), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}
