package worker

import (
	"context"
	"fmt"

	"github.com/bobarin/iris/internal/models"
	"github.com/bobarin/iris/internal/services"
)

// overlayScriptTemplate is the audio-reactive visualization the diagram
// renderer executes for transition segments: a row of bars whose
// heights follow the narration's amplitude envelope on a black
// background, which the composer later keys over the previous
// segment's closing frame. Substituted values are the narration file
// path and a fallback duration used when the file cannot be read.
const overlayScriptTemplate = `from manim import *
import wave
import numpy as np

class SoundWaveScene(Scene):
    def construct(self):
        audio_path = r"%s"

        try:
            with wave.open(audio_path, 'r') as wav_file:
                n_channels = wav_file.getnchannels()
                sampwidth = wav_file.getsampwidth()
                framerate = wav_file.getframerate()
                n_frames = wav_file.getnframes()
                raw_data = wav_file.readframes(n_frames)
                dtype = np.int16 if sampwidth == 2 else np.uint8
                audio_data = np.frombuffer(raw_data, dtype=dtype)
                if n_channels == 2:
                    audio_data = audio_data.reshape(-1, 2)
                    audio_data = audio_data.mean(axis=1)
                max_val = np.abs(audio_data).max()
                if max_val > 0:
                    audio_data = audio_data / max_val
                duration = n_frames / framerate
        except Exception as e:
            print(f"Error reading audio: {e}")
            audio_data = np.zeros(100)
            duration = %.2f
            framerate = 44100

        num_bars = 40
        bar_width = 0.2
        bar_spacing = 0.3

        bars = VGroup(*[
            Rectangle(width=bar_width, height=0.1, fill_color=WHITE, fill_opacity=0.9, stroke_width=0)
            for _ in range(num_bars)
        ])
        bars.arrange(RIGHT, buff=bar_spacing - bar_width)
        bars.move_to(ORIGIN)
        self.add(bars)

        time_tracker = ValueTracker(0)

        def amplitude_at(t):
            if t >= duration:
                return 0
            index = int(t * framerate)
            if index >= len(audio_data):
                return 0
            window_size = 1000
            start = max(0, index - window_size // 2)
            end = min(len(audio_data), index + window_size // 2)
            chunk = audio_data[start:end]
            if len(chunk) == 0:
                return 0
            return np.sqrt(np.mean(chunk**2))

        def update_wave(group):
            t = time_tracker.get_value()
            base_amp = amplitude_at(t)
            sensitivity = 5.0
            for i, bar in enumerate(group):
                dist = abs(i - num_bars / 2)
                falloff = np.exp(-0.1 * (dist**2))
                noise = 0.1 * np.sin(t * 10 + i)
                height = max(0.1, (base_amp * sensitivity * falloff) + abs(noise))
                height = min(height, 4.0)
                bar.become(
                    Rectangle(
                        width=bar_width,
                        height=height,
                        fill_color=interpolate_color(WHITE, GRAY, base_amp),
                        fill_opacity=0.9,
                        stroke_width=0,
                    ).move_to(bar.get_center())
                )

        bars.add_updater(update_wave)
        self.play(time_tracker.animate(run_time=duration, rate_func=linear).set_value(duration))
        bars.remove_updater(update_wave)
`

// overlayScript renders the transition overlay source for one narration
// file.
func overlayScript(audioPath string, duration float64) string {
	return fmt.Sprintf(overlayScriptTemplate, audioPath, duration)
}

// composeTransition builds the full transition clip: the previous
// segment's closing frame dimmed under an audio-reactive overlay, with
// the narration attached. The overlay script is templated rather than
// model-authored, so there is no preview phase; the composed output
// already matches the narration exactly and skips reconcile/combine.
func (p *Processor) composeTransition(ctx context.Context, task *segmentTask, audioPath string, duration float64) error {
	task.log("Generating sound wave transition")

	framePath, err := p.lastFrame(ctx, task)
	if err != nil {
		return err
	}

	script := overlayScript(audioPath, duration)
	task.publish(func(s *models.Segment) {
		sc := script
		s.GeneratedScript = &sc
	})

	overlay, err := p.render(ctx, p.renderers.Diagram, services.RenderRequest{
		Description:     task.seg.Description,
		Title:           task.seg.Title,
		DurationSeconds: duration,
		Script:          script,
	})
	if err != nil {
		return fmt.Errorf("sound wave overlay: %w", err)
	}
	task.publish(func(s *models.Segment) {
		s.VideoPath = overlay.VideoPath
		s.AddLog("Generated sound wave overlay: %s", overlay.VideoPath)
	})

	combined, err := p.media.ComposeTransition(ctx, framePath, overlay.VideoPath, audioPath, duration)
	if err != nil {
		return fmt.Errorf("compose transition: %w", err)
	}
	task.publish(func(s *models.Segment) {
		s.CombinedPath = combined
		s.AddLog("Composed transition: %s", combined)
	})
	return nil
}

// lastFrame returns the closing frame of the previous segment's output.
// The first segment of a job, a previous segment without output, or a
// failed extraction all fall back to a solid black frame; only the
// fallback itself failing fails the transition.
func (p *Processor) lastFrame(ctx context.Context, task *segmentTask) (string, error) {
	if task.prev != nil {
		if src := task.prev.OutputPath(); src != "" {
			frame, err := p.media.ExtractLastFrame(ctx, src)
			if err == nil {
				task.log("Extracted last frame: %s", frame)
				return frame, nil
			}
			task.log("Warning: failed to extract last frame: %v", err)
		}
	}

	frame, err := p.media.BlackFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("black fallback frame: %w", err)
	}
	task.log("No usable previous frame, using black background")
	return frame, nil
}
