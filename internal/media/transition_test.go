package media

import (
	"fmt"
	"strings"
	"testing"
)

func TestFrameSeekPoint(t *testing.T) {
	cases := []struct {
		duration float64
		want     float64
	}{
		{10.0, 9.9},
		{0.2, 0.1},
		{0.15, 0},
		{0, 0},
	}
	for _, c := range cases {
		if got := frameSeekPoint(c.duration); got != c.want {
			t.Errorf("frameSeekPoint(%f) = %f, want %f", c.duration, got, c.want)
		}
	}
}

func TestTransitionCurveWindows(t *testing.T) {
	bg, fg := transitionCurves(6.0)

	// Background dims to its hold opacity over the opening fade and the
	// fade-out window starts at duration minus 0.5.
	if !strings.Contains(bg, "0.3000") {
		t.Errorf("background curve missing hold opacity: %q", bg)
	}
	if !strings.Contains(bg, "5.5000") {
		t.Errorf("background curve missing fade-out start: %q", bg)
	}

	if !strings.Contains(fg, "0.4000") {
		t.Errorf("overlay curve missing rise window: %q", fg)
	}
	if !strings.Contains(fg, "5.5000") {
		t.Errorf("overlay curve missing fade-out start: %q", fg)
	}
}

func TestBuildTransitionFilter(t *testing.T) {
	filter := buildTransitionFilter(6.0)

	// Opacity masks are evaluated on tiny synthetic frames and scaled up,
	// so geq runs four pixels per frame instead of two million.
	if !strings.Contains(filter, "s=2x2") {
		t.Errorf("expected 2x2 mask sources, got %q", filter)
	}
	if strings.Count(filter, "geq=") != 2 {
		t.Errorf("expected one geq per mask, got %q", filter)
	}
	if strings.Count(filter, "blend=all_mode=multiply") != 2 {
		t.Errorf("expected multiply blend per layer, got %q", filter)
	}
	if !strings.Contains(filter, "blend=all_mode=lighten:shortest=1[outv]") {
		t.Errorf("expected lighten merge into [outv], got %q", filter)
	}

	scale := fmt.Sprintf("scale=%d:%d", transitionWidth, transitionHeight)
	if strings.Count(filter, scale) != 4 {
		t.Errorf("expected both layers and both masks scaled to canvas, got %q", filter)
	}
}
