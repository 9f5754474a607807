package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bobarin/iris/internal/media"
)

func TestGoogleVoiceName(t *testing.T) {
	if got := googleVoiceName("Kore"); got != "en-US-Chirp3-HD-Kore" {
		t.Errorf("known voice: got %q", got)
	}
	if got := googleVoiceName("NotAVoice"); got != "en-US-Chirp3-HD-Schedar" {
		t.Errorf("unknown voice should fall back to the default, got %q", got)
	}
}

func TestBuildSSML(t *testing.T) {
	ssml := buildSSML("Look up & wonder.", 1.35)
	if ssml != `<speak><prosody rate="135%">Look up &amp; wonder.</prosody></speak>` {
		t.Errorf("unexpected ssml %q", ssml)
	}

	// Non-positive speed means the natural pace.
	if got := buildSSML("x", 0); got != `<speak><prosody rate="100%">x</prosody></speak>` {
		t.Errorf("zero speed: got %q", got)
	}
}

type fakeProvider struct {
	result *SpeechResult
	err    error

	gotText  string
	gotVoice string
	gotSpeed float64
}

func (f *fakeProvider) GenerateSpeech(ctx context.Context, text, voice string, speed float64) (*SpeechResult, error) {
	f.gotText, f.gotVoice, f.gotSpeed = text, voice, speed
	return f.result, f.err
}

type fakeProber struct{ duration float64 }

func (f *fakeProber) MediaDuration(ctx context.Context, path string) (float64, error) {
	return f.duration, nil
}

func TestSynthesizerWritesAudioAndProbesDuration(t *testing.T) {
	ws, err := media.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	provider := &fakeProvider{result: &SpeechResult{AudioData: []byte("RIFFfake"), Format: "wav"}}
	synth := NewSynthesizer(provider, ws, &fakeProber{duration: 6.4}, time.Minute)

	path, duration, err := synth.Synthesize(context.Background(), "Hello there.", "Schedar", 1.35)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if duration != 6.4 {
		t.Errorf("expected probed duration 6.4, got %f", duration)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("audio file not written: %v", err)
	}
	if string(data) != "RIFFfake" {
		t.Errorf("audio bytes mangled: %q", data)
	}

	if provider.gotVoice != "Schedar" || provider.gotSpeed != 1.35 {
		t.Errorf("voice settings not forwarded: %q %f", provider.gotVoice, provider.gotSpeed)
	}
}

func TestSynthesizerRejectsBlankText(t *testing.T) {
	ws, err := media.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	synth := NewSynthesizer(&fakeProvider{}, ws, &fakeProber{}, time.Minute)

	if _, _, err := synth.Synthesize(context.Background(), "   ", "Schedar", 1.35); err == nil {
		t.Error("expected error for blank narration text")
	}
}
