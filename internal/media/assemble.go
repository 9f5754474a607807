package media

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Final output normalization targets. Renderer backends emit different
// native resolutions and codecs, so every clip is conformed before the
// concat filter sees it.
const (
	finalWidth      = 1280
	finalHeight     = 720
	finalFPS        = 30
	finalSampleRate = 44100
)

// clipInfo is what the assembler needs to know about one input.
type clipInfo struct {
	path     string
	duration float64
	hasAudio bool
}

// buildAssembleFilter normalizes every input to one resolution, frame
// rate and sample rate, then concatenates. Clips without an audio
// stream contribute silence trimmed to their own length so the concat
// filter always sees n matched a/v pairs.
func buildAssembleFilter(clips []clipInfo) string {
	var b strings.Builder
	for i, c := range clips {
		fmt.Fprintf(&b,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, finalWidth, finalHeight, finalWidth, finalHeight, finalFPS, i)
		if c.hasAudio {
			fmt.Fprintf(&b, "[%d:a]aresample=%d[a%d];", i, finalSampleRate, i)
		} else {
			fmt.Fprintf(&b,
				"anullsrc=channel_layout=stereo:sample_rate=%d,atrim=0:%.4f,asetpts=PTS-STARTPTS[a%d];",
				finalSampleRate, c.duration, i)
		}
	}
	for i := range clips {
		fmt.Fprintf(&b, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[outv][outa]", len(clips))
	return b.String()
}

// AssembleFinal stitches the segment clips, in the order given, into
// final_<jobID>.mp4 and returns its path. A single clip is copied
// without re-encoding.
func (e *Engine) AssembleFinal(ctx context.Context, jobID string, clipPaths []string) (string, error) {
	if len(clipPaths) == 0 {
		return "", fmt.Errorf("no clips to assemble")
	}

	output := e.ws.CombinedPath(fmt.Sprintf("final_%s.mp4", jobID))

	if len(clipPaths) == 1 {
		if err := CopyFile(clipPaths[0], output); err != nil {
			return "", err
		}
		return output, nil
	}

	clips := make([]clipInfo, len(clipPaths))
	for i, path := range clipPaths {
		duration, err := e.MediaDuration(ctx, path)
		if err != nil {
			return "", err
		}
		hasAudio, err := e.HasAudioStream(ctx, path)
		if err != nil {
			return "", err
		}
		clips[i] = clipInfo{path: path, duration: duration, hasAudio: hasAudio}
	}

	args := make([]string, 0, len(clips)*2+16)
	for _, c := range clips {
		args = append(args, "-i", c.path)
	}
	args = append(args,
		"-filter_complex", buildAssembleFilter(clips),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y", output,
	)

	log.Printf("[Media] Assembling %d clips into %s", len(clips), output)

	if err := e.run(ctx, args...); err != nil {
		return "", err
	}
	return output, nil
}
