package media

import (
	"strings"
	"testing"
)

func TestBuildCombineArgsFreezesShortVideo(t *testing.T) {
	args := strings.Join(buildCombineArgs("v.mp4", "a.wav", "out.mp4", 5.0, 7.0), " ")

	if !strings.Contains(args, "tpad=stop_mode=clone:stop_duration=2.000") {
		t.Errorf("expected freeze padding for 2s gap, got %q", args)
	}
	if !strings.Contains(args, "-shortest") {
		t.Errorf("expected -shortest, got %q", args)
	}
	if strings.Contains(args, "-c:v copy") {
		t.Error("padded video cannot be stream-copied")
	}
}

func TestBuildCombineArgsMuxesCloseDurations(t *testing.T) {
	args := strings.Join(buildCombineArgs("v.mp4", "a.wav", "out.mp4", 7.0, 7.2), " ")

	if strings.Contains(args, "tpad") {
		t.Errorf("expected plain mux for 0.2s gap, got %q", args)
	}
	if !strings.Contains(args, "-c:v copy") {
		t.Errorf("expected video stream copy, got %q", args)
	}
	if !strings.Contains(args, "-shortest") {
		t.Errorf("expected -shortest, got %q", args)
	}
}

func TestBuildCombineArgsPadThresholdIsExclusive(t *testing.T) {
	// Audio exactly 0.5s longer still muxes; padding starts past the
	// threshold.
	args := strings.Join(buildCombineArgs("v.mp4", "a.wav", "out.mp4", 5.0, 5.5), " ")
	if strings.Contains(args, "tpad") {
		t.Errorf("expected mux at the threshold boundary, got %q", args)
	}
}
