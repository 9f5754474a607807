package media

import (
	"context"
	"fmt"
	"log"
)

// DefaultCrossfade is the fade length used when merging chunked clips.
const DefaultCrossfade = 0.5

// xfadeOffset places the fade so it ends exactly at the first clip's
// end: offset = dur1 - fade, floored at zero for very short clips.
func xfadeOffset(firstDuration, fade float64) float64 {
	offset := firstDuration - fade
	if offset < 0 {
		offset = 0
	}
	return offset
}

// buildCrossfadeFilter returns the filter graph for merging two clips.
// Audio is crossfaded only when both inputs carry a stream; otherwise
// the merge is video-only.
func buildCrossfadeFilter(offset, fade float64, withAudio bool) string {
	filter := fmt.Sprintf("[0:v][1:v]xfade=transition=fade:duration=%.3f:offset=%.3f[v]", fade, offset)
	if withAudio {
		filter += fmt.Sprintf(";[0:a][1:a]acrossfade=d=%.3f[a]", fade)
	}
	return filter
}

// Crossfade merges two clips into one with a time-windowed blend and
// returns the merged path.
func (e *Engine) Crossfade(ctx context.Context, first, second string, fade float64) (string, error) {
	if fade <= 0 {
		fade = DefaultCrossfade
	}

	dur1, err := e.MediaDuration(ctx, first)
	if err != nil {
		return "", err
	}
	offset := xfadeOffset(dur1, fade)

	a1, err := e.HasAudioStream(ctx, first)
	if err != nil {
		return "", err
	}
	a2, err := e.HasAudioStream(ctx, second)
	if err != nil {
		return "", err
	}
	withAudio := a1 && a2

	output := e.ws.VideoPath(TempName("xfade", ".mp4"))
	filter := buildCrossfadeFilter(offset, fade, withAudio)

	args := []string{
		"-i", first,
		"-i", second,
		"-filter_complex", filter,
		"-map", "[v]",
	}
	if withAudio {
		args = append(args, "-map", "[a]")
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-crf", "23",
	)
	if withAudio {
		args = append(args, "-c:a", "aac")
	}
	args = append(args, "-y", output)

	log.Printf("[Media] Crossfading %s + %s (offset=%.3f, fade=%.3f, audio=%v)", first, second, offset, fade, withAudio)

	if err := e.run(ctx, args...); err != nil {
		return "", err
	}
	return output, nil
}
