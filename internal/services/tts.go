package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bobarin/iris/internal/media"
)

// ---------------------------------------------------------------------------
// Speech synthesis
// SpeechProvider is the common interface for text-to-speech backends; both
// Google Cloud TTS and Cartesia implement it so the worker can use whichever
// is configured. The Synthesizer wraps a provider, persists the audio into
// the media workspace, and probes the real duration from the written file —
// provider duration estimates are never trusted.
// ---------------------------------------------------------------------------

// Narrator voice names accepted on segments. Providers map these to their
// own voice identifiers; unknown names fall back to the provider default.
var narratorVoices = map[string]bool{
	"Schedar": true,
	"Kore":    true,
	"Charon":  true,
	"Fenrir":  true,
	"Aoede":   true,
	"Puck":    true,
	"Leda":    true,
	"Orus":    true,
	"Zephyr":  true,
}

// SpeechResult is the common response type from any TTS provider.
type SpeechResult struct {
	AudioData []byte
	Format    string // file extension without the dot: "wav", "mp3"
}

// SpeechProvider is the interface that any TTS backend must implement.
// voice is one of the narrator voice names; speed is a playback-rate
// multiplier where 1.0 is the voice's natural pace.
type SpeechProvider interface {
	GenerateSpeech(ctx context.Context, text, voice string, speed float64) (*SpeechResult, error)
}

// durationProber reports a media file's duration in seconds.
type durationProber interface {
	MediaDuration(ctx context.Context, path string) (float64, error)
}

// Synthesizer turns narration text into an audio file on disk plus its
// measured duration.
type Synthesizer struct {
	provider SpeechProvider
	ws       *media.Workspace
	probe    durationProber
	timeout  time.Duration
}

// NewSynthesizer wires a provider to the media workspace. probe is usually
// the ffmpeg engine; timeout caps each provider call.
func NewSynthesizer(provider SpeechProvider, ws *media.Workspace, probe durationProber, timeout time.Duration) *Synthesizer {
	return &Synthesizer{provider: provider, ws: ws, probe: probe, timeout: timeout}
}

// Synthesize generates narration audio and returns the written file's path
// and duration in seconds.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string, speed float64) (string, float64, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("no narration text to synthesize")
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.provider.GenerateSpeech(callCtx, text, voice, speed)
	if err != nil {
		if deadlineExceeded(err) {
			return "", 0, &TimeoutError{Op: "speech synthesis", Timeout: s.timeout, Err: err}
		}
		return "", 0, fmt.Errorf("speech synthesis failed: %w", err)
	}
	if len(result.AudioData) == 0 {
		return "", 0, fmt.Errorf("speech provider returned empty audio")
	}

	name := media.TempName("narration", "."+result.Format)
	path, err := s.ws.WriteAudio(name, result.AudioData)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write narration audio: %w", err)
	}

	duration, err := s.probe.MediaDuration(ctx, path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to probe narration duration: %w", err)
	}

	log.Printf("[TTS] synthesized %d chars -> %s (%.2fs, voice=%s, speed=%.2f)",
		len(text), name, duration, voice, speed)

	return path, duration, nil
}
