package media

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
)

// Audio may exceed video by this much before the gap is bridged with a
// frozen final frame instead of plain truncation.
const freezePadThreshold = 0.5

// buildCombineArgs assembles the mux invocation. When the narration
// outruns the video, the last frame is cloned for the gap; otherwise
// the streams are muxed directly and -shortest trims the longer one.
func buildCombineArgs(video, audio, output string, videoDur, audioDur float64) []string {
	if audioDur > videoDur+freezePadThreshold {
		pad := audioDur - videoDur
		filter := fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%.3f[v]", pad)
		return []string{
			"-i", video,
			"-i", audio,
			"-filter_complex", filter,
			"-map", "[v]",
			"-map", "1:a",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-preset", "fast",
			"-crf", "23",
			"-c:a", "aac",
			"-b:a", "192k",
			"-shortest",
			"-y", output,
		}
	}

	return []string{
		"-i", video,
		"-i", audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y", output,
	}
}

// CombineAudioVideo muxes narration onto a clip and returns the
// combined path.
func (e *Engine) CombineAudioVideo(ctx context.Context, videoPath, audioPath string) (string, error) {
	videoDur, err := e.MediaDuration(ctx, videoPath)
	if err != nil {
		return "", err
	}
	audioDur, err := e.MediaDuration(ctx, audioPath)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	output := e.ws.CombinedPath(base + "_combined.mp4")

	if audioDur > videoDur+freezePadThreshold {
		log.Printf("[Media] Audio outruns video by %.2fs, freezing final frame of %s", audioDur-videoDur, videoPath)
	}

	if err := e.run(ctx, buildCombineArgs(videoPath, audioPath, output, videoDur, audioDur)...); err != nil {
		return "", err
	}
	return output, nil
}
