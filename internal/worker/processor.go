package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bobarin/iris/internal/media"
	"github.com/bobarin/iris/internal/models"
	"github.com/bobarin/iris/internal/services"
)

const (
	// defaultSegmentDuration is the target length for segments without
	// narration.
	defaultSegmentDuration = 5.0

	// The animation backend only emits clips between these lengths;
	// longer segments are covered by several crossfaded takes.
	maxClipSeconds = 8.0
	minClipSeconds = 4.0

	crossfadeSeconds = 0.5

	// reconcileTolerance is how far a rendered visual may drift from
	// the narration before it gets time-stretched.
	reconcileTolerance = 0.5
)

// perspectivePrefixes vary the description across animation clips so a
// long segment does not render the same shot N times. The first slot is
// the unmodified description.
var perspectivePrefixes = [...]string{
	"",
	"Show this from a different angle. ",
	"Zoom in on a key detail. ",
	"Pull back to show the broader context. ",
	"Focus on the most visually interesting element. ",
}

// SpeechSynthesizer turns narration text into an audio file on the
// shared media volume and reports its duration.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) (string, float64, error)
}

// MediaEngine is the slice of the ffmpeg engine the processor drives.
type MediaEngine interface {
	MediaDuration(ctx context.Context, path string) (float64, error)
	MatchToDuration(ctx context.Context, videoPath string, target float64) (string, error)
	Crossfade(ctx context.Context, first, second string, fade float64) (string, error)
	CombineAudioVideo(ctx context.Context, videoPath, audioPath string) (string, error)
	ExtractLastFrame(ctx context.Context, videoPath string) (string, error)
	BlackFrame(ctx context.Context) (string, error)
	ComposeTransition(ctx context.Context, framePath, overlayPath, audioPath string, duration float64) (string, error)
	AssembleFinal(ctx context.Context, jobID string, clipPaths []string) (string, error)
}

var (
	_ MediaEngine       = (*media.Engine)(nil)
	_ SpeechSynthesizer = (*services.Synthesizer)(nil)
)

// segmentTask bundles what the pipeline needs for one segment: an input
// snapshot taken when processing started, a snapshot of the nearest
// completed earlier segment (transitions fade out of its last frame),
// and a publish hook that mutates the canonical segment under the job
// lock and persists the job.
type segmentTask struct {
	seg     *models.Segment
	prev    *models.Segment
	publish func(fn func(*models.Segment))
}

func (t *segmentTask) log(format string, args ...any) {
	t.publish(func(s *models.Segment) { s.AddLog(format, args...) })
}

// Processor runs one segment through narration, visual generation,
// duration reconciliation and muxing. A single Processor is shared by
// every job; the render semaphore bounds renderer load globally.
type Processor struct {
	speech    SpeechSynthesizer
	renderers *services.Renderers
	media     MediaEngine
	renderSem *semaphore.Weighted
}

func NewProcessor(speech SpeechSynthesizer, renderers *services.Renderers, engine MediaEngine, maxConcurrentRenders int) *Processor {
	if maxConcurrentRenders < 1 {
		maxConcurrentRenders = 1
	}
	return &Processor{
		speech:    speech,
		renderers: renderers,
		media:     engine,
		renderSem: semaphore.NewWeighted(int64(maxConcurrentRenders)),
	}
}

// Process runs the segment to a terminal status, publishing every
// milestone as it happens. The returned error is the pipeline failure,
// already recorded on the segment; the caller only decides what it
// means for the job.
func (p *Processor) Process(ctx context.Context, task *segmentTask) error {
	task.publish(func(s *models.Segment) {
		s.Status = models.SegmentStatusProcessing
		s.Error = nil
		s.AddLog("Processing started (type=%s)", task.seg.Type)
	})

	if err := p.process(ctx, task); err != nil {
		task.publish(func(s *models.Segment) {
			var execErr *services.ExecutionError
			if errors.As(err, &execErr) && execErr.Script != "" {
				script := execErr.Script
				s.GeneratedScript = &script
				s.AddLog("Execution failed, script captured for inspection")
			}
			s.SetError(err)
			s.AddLog("Failed: %v", err)
		})
		return err
	}

	task.publish(func(s *models.Segment) {
		s.Status = models.SegmentStatusCompleted
		s.AddLog("Segment completed")
	})
	return nil
}

func (p *Processor) process(ctx context.Context, task *segmentTask) error {
	audioPath, duration, err := p.narrate(ctx, task)
	if err != nil {
		return err
	}

	if task.seg.Type == models.SegmentTypeTransition {
		return p.composeTransition(ctx, task, audioPath, duration)
	}

	videoPath, err := p.renderVisual(ctx, task, duration)
	if err != nil {
		return err
	}
	task.publish(func(s *models.Segment) {
		s.VideoPath = videoPath
		s.AddLog("Visual generated: %s", videoPath)
	})

	videoPath, err = p.reconcile(ctx, task, videoPath, audioPath, duration)
	if err != nil {
		return err
	}

	return p.combine(ctx, task, videoPath, audioPath)
}

// narrate synthesizes the segment's voiceover and fixes the segment's
// target duration. Segments without narration fall back to a default
// length; transitions cannot, their whole timeline hangs off the audio.
func (p *Processor) narrate(ctx context.Context, task *segmentTask) (string, float64, error) {
	seg := task.seg
	if !seg.Voiceover.HasText() {
		if seg.Type == models.SegmentTypeTransition {
			return "", 0, fmt.Errorf("transition segment %q requires voiceover text", seg.Title)
		}
		task.publish(func(s *models.Segment) {
			s.DurationSeconds = defaultSegmentDuration
			s.AddLog("No voiceover, using default duration %.1fs", defaultSegmentDuration)
		})
		return "", defaultSegmentDuration, nil
	}

	task.log("Generating voiceover (voice=%s)", seg.Voiceover.Voice)
	audioPath, duration, err := p.speech.Synthesize(ctx, seg.Voiceover.Text, seg.Voiceover.Voice, seg.Voiceover.Speed)
	if err != nil {
		return "", 0, fmt.Errorf("voiceover synthesis: %w", err)
	}
	task.publish(func(s *models.Segment) {
		s.AudioPath = audioPath
		s.DurationSeconds = duration
		s.AddLog("Voiceover generated: %.2fs", duration)
	})
	return audioPath, duration, nil
}

func (p *Processor) renderVisual(ctx context.Context, task *segmentTask, target float64) (string, error) {
	task.log("Generating %s visual (%.2fs)", task.seg.Type, target)
	if task.seg.Type == models.SegmentTypeAnimation {
		return p.renderAnimation(ctx, task, target)
	}
	return p.renderScripted(ctx, task, target)
}

// planClips splits a target duration into renderer-sized clips.
func planClips(target float64) (int, float64) {
	n := int(math.Ceil(target / maxClipSeconds))
	if n < 1 {
		n = 1
	}
	length := target / float64(n)
	if length > maxClipSeconds {
		length = maxClipSeconds
	}
	if length < minClipSeconds {
		length = minClipSeconds
	}
	return n, length
}

// renderAnimation covers the target duration with one or more animation
// clips. Clips render concurrently under the global render gate and are
// merged left to right with a short crossfade.
func (p *Processor) renderAnimation(ctx context.Context, task *segmentTask, target float64) (string, error) {
	seg := task.seg
	numClips, clipLen := planClips(target)

	if numClips == 1 {
		result, err := p.render(ctx, p.renderers.Animation, services.RenderRequest{
			Description:     seg.Description,
			Title:           seg.Title,
			DurationSeconds: clipLen,
			Metadata:        renderMetadata(seg.Params),
		})
		if err != nil {
			return "", err
		}
		return result.VideoPath, nil
	}

	task.log("Generating %d clips (~%.1fs each)", numClips, clipLen)

	// clips is indexed per goroutine and only read after Wait.
	clips := make([]string, numClips)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numClips; i++ {
		g.Go(func() error {
			prefix := perspectivePrefixes[i%len(perspectivePrefixes)]
			result, err := p.render(gctx, p.renderers.Animation, services.RenderRequest{
				Description:     prefix + seg.Description,
				Title:           fmt.Sprintf("%s (clip %d)", seg.Title, i+1),
				DurationSeconds: clipLen,
				Metadata:        renderMetadata(seg.Params),
			})
			if err != nil {
				return fmt.Errorf("clip %d/%d: %w", i+1, numClips, err)
			}
			clips[i] = result.VideoPath
			task.log("Clip %d/%d rendered", i+1, numClips)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	task.log("Crossfading %d clips", numClips)
	merged := clips[0]
	for i := 1; i < numClips; i++ {
		out, err := p.media.Crossfade(ctx, merged, clips[i], crossfadeSeconds)
		if err != nil {
			return "", fmt.Errorf("crossfade clip %d: %w", i+1, err)
		}
		merged = out
	}
	return merged, nil
}

// renderScripted runs the two-phase flow for script-backed renderers:
// preview the script, store it on the segment, then execute that exact
// script. A failed preview aborts the segment before anything runs.
func (p *Processor) renderScripted(ctx context.Context, task *segmentTask, target float64) (string, error) {
	seg := task.seg
	renderer, err := p.renderers.For(seg.Type)
	if err != nil {
		return "", err
	}

	req := services.RenderRequest{
		Description:     seg.Description,
		Title:           seg.Title,
		DurationSeconds: target,
		Metadata:        renderMetadata(seg.Params),
	}

	task.log("Generating script")
	script, err := renderer.PreviewScript(ctx, req)
	if err != nil {
		return "", fmt.Errorf("script generation: %w", err)
	}
	task.publish(func(s *models.Segment) {
		sc := script
		s.GeneratedScript = &sc
		s.AddLog("Script generated")
	})

	task.log("Rendering with generated script")
	req.Script = script
	result, err := p.render(ctx, renderer, req)
	if err != nil {
		return "", err
	}
	return result.VideoPath, nil
}

// reconcile time-stretches the rendered visual when it drifts too far
// from the narration. Without audio the visual's own length stands.
func (p *Processor) reconcile(ctx context.Context, task *segmentTask, videoPath, audioPath string, target float64) (string, error) {
	if audioPath == "" {
		return videoPath, nil
	}
	actual, err := p.media.MediaDuration(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("probe rendered visual: %w", err)
	}
	if math.Abs(actual-target) <= reconcileTolerance {
		return videoPath, nil
	}

	task.log("Time-stretching video: %.2fs -> %.2fs", actual, target)
	matched, err := p.media.MatchToDuration(ctx, videoPath, target)
	if err != nil {
		return "", fmt.Errorf("match duration: %w", err)
	}
	task.publish(func(s *models.Segment) {
		s.VideoPath = matched
		s.AddLog("Video time-stretched")
	})
	return matched, nil
}

// combine muxes the narration under the visual. Segments without
// narration pass the visual through untouched.
func (p *Processor) combine(ctx context.Context, task *segmentTask, videoPath, audioPath string) error {
	if audioPath == "" {
		task.publish(func(s *models.Segment) {
			s.CombinedPath = videoPath
		})
		return nil
	}

	task.log("Combining audio and video")
	combined, err := p.media.CombineAudioVideo(ctx, videoPath, audioPath)
	if err != nil {
		return fmt.Errorf("combine audio and video: %w", err)
	}
	task.publish(func(s *models.Segment) {
		s.CombinedPath = combined
		s.AddLog("Combined video: %s", combined)
	})
	return nil
}

// render forwards one generate call to a renderer, gated by the shared
// concurrency limit so parallel clips cannot swamp the backends.
func (p *Processor) render(ctx context.Context, r services.Renderer, req services.RenderRequest) (*services.RenderResult, error) {
	if err := p.renderSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire render slot: %w", err)
	}
	defer p.renderSem.Release(1)
	return r.Generate(ctx, req)
}

// renderMetadata flattens the typed params union into the loose map the
// renderer services accept.
func renderMetadata(params *models.SegmentParams) map[string]any {
	if params == nil {
		return nil
	}
	variant := params.Variant()
	if variant == nil {
		return nil
	}
	raw, err := json.Marshal(variant)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
