package media

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
)

const (
	// Differences below this are imperceptible; the clip is copied as-is.
	matchCopyThreshold = 0.1

	// atempo is only numerically stable inside [0.5, 2.0]; factors
	// outside get decomposed into a chain of stages.
	atempoMin = 0.5
	atempoMax = 2.0
)

// matchPlan is the precomputed recipe for retiming one clip.
type matchPlan struct {
	copyOnly bool
	speed    float64
	atempo   []float64
	hasAudio bool
}

// planMatch decides how a clip of source seconds becomes target seconds.
func planMatch(source, target float64, hasAudio bool) matchPlan {
	if math.Abs(source-target) < matchCopyThreshold {
		return matchPlan{copyOnly: true}
	}
	speed := source / target
	plan := matchPlan{speed: speed, hasAudio: hasAudio}
	if hasAudio {
		plan.atempo = atempoChain(speed)
	}
	return plan
}

// atempoChain decomposes a speed factor into stages within the stable
// atempo range: boundary factors repeatedly, then the remainder.
func atempoChain(speed float64) []float64 {
	var stages []float64
	for speed > atempoMax {
		stages = append(stages, atempoMax)
		speed /= atempoMax
	}
	for speed < atempoMin {
		stages = append(stages, atempoMin)
		speed /= atempoMin
	}
	if math.Abs(speed-1.0) > 1e-9 {
		stages = append(stages, speed)
	}
	return stages
}

// buildMatchArgs assembles the ffmpeg invocation for a non-copy plan.
// Video timestamps are scaled by the inverse speed; audio is retimed
// through the atempo chain, or dropped entirely for silent clips.
func buildMatchArgs(input, output string, plan matchPlan) []string {
	setpts := fmt.Sprintf("setpts=%.6f*PTS", 1.0/plan.speed)

	if !plan.hasAudio {
		return []string{
			"-i", input,
			"-vf", setpts,
			"-an",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-preset", "fast",
			"-crf", "23",
			"-y", output,
		}
	}

	stages := make([]string, len(plan.atempo))
	for i, s := range plan.atempo {
		stages[i] = fmt.Sprintf("atempo=%.4f", s)
	}
	filter := fmt.Sprintf("[0:v]%s[v];[0:a]%s[a]", setpts, strings.Join(stages, ","))

	return []string{
		"-i", input,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-y", output,
	}
}

// MatchToDuration retimes a clip so its length equals target seconds
// and returns the output path. Near-equal durations are copied
// unchanged, which makes the operation idempotent.
func (e *Engine) MatchToDuration(ctx context.Context, videoPath string, target float64) (string, error) {
	source, err := e.MediaDuration(ctx, videoPath)
	if err != nil {
		return "", err
	}

	output := derivedPath(videoPath, "_matched")

	hasAudio := false
	plan := planMatch(source, target, false)
	if !plan.copyOnly {
		hasAudio, err = e.HasAudioStream(ctx, videoPath)
		if err != nil {
			return "", err
		}
		plan = planMatch(source, target, hasAudio)
	}

	if plan.copyOnly {
		log.Printf("[Media] Duration diff %.3fs within threshold, copying %s", math.Abs(source-target), videoPath)
		if err := CopyFile(videoPath, output); err != nil {
			return "", err
		}
		return output, nil
	}

	log.Printf("[Media] Matching %s from %.2fs to %.2fs (speed=%.4f, audioStages=%d)",
		videoPath, source, target, plan.speed, len(plan.atempo))

	if err := e.run(ctx, buildMatchArgs(videoPath, output, plan)...); err != nil {
		return "", err
	}
	return output, nil
}
