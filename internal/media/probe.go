package media

import (
	"context"
	"fmt"
)

// MediaDuration returns the container duration of an audio or video
// file in seconds.
func (e *Engine) MediaDuration(ctx context.Context, path string) (float64, error) {
	out, err := e.probeOutput(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	var duration float64
	if _, err := fmt.Sscanf(out, "%f", &duration); err != nil {
		return 0, fmt.Errorf("failed to parse duration of %s: %w", path, err)
	}
	return duration, nil
}

// HasAudioStream reports whether the file carries at least one audio
// stream. Processing a stream that is not there produces broken output,
// so every audio-touching step checks first.
func (e *Engine) HasAudioStream(ctx context.Context, path string) (bool, error) {
	out, err := e.probeOutput(ctx,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, err
	}
	return out != "", nil
}
