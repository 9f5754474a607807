package media

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Transition composition geometry and windows.
const (
	transitionWidth  = 1920
	transitionHeight = 1080
	transitionFPS    = 30

	bgFadeInDur    = 0.5 // background 100% -> 30%
	bgHoldOpacity  = 0.3
	overlayRiseDur = 0.4 // overlay 0% -> 100%
	fadeOutDur     = 0.5 // both layers -> 0% at the end
)

// frameSeekPoint picks where to grab the final frame: just before the
// end, or the start for clips too short to seek into.
func frameSeekPoint(duration float64) float64 {
	if duration < 0.2 {
		return 0
	}
	return duration - 0.1
}

// ExtractLastFrame grabs a still from the end of a clip. If the seek
// lands past the last packet it retries from the start; an empty output
// file counts as failure.
func (e *Engine) ExtractLastFrame(ctx context.Context, videoPath string) (string, error) {
	duration, err := e.MediaDuration(ctx, videoPath)
	if err != nil {
		return "", err
	}

	output := e.ws.FramePath(TempName("frame", ".png"))
	seeks := []float64{frameSeekPoint(duration), 0}

	var lastErr error
	for _, seek := range seeks {
		err := e.run(ctx,
			"-ss", fmt.Sprintf("%.3f", seek),
			"-i", videoPath,
			"-frames:v", "1",
			"-q:v", "2",
			"-y", output,
		)
		if err != nil {
			lastErr = err
			continue
		}
		if info, statErr := os.Stat(output); statErr == nil && info.Size() > 0 {
			return output, nil
		}
		lastErr = fmt.Errorf("extracted frame is empty")
	}
	return "", fmt.Errorf("failed to extract last frame of %s: %w", videoPath, lastErr)
}

// BlackFrame synthesizes a solid black still at the transition
// resolution, used when no previous segment exists.
func (e *Engine) BlackFrame(ctx context.Context) (string, error) {
	output := e.ws.FramePath(TempName("black", ".png"))
	err := e.run(ctx,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d", transitionWidth, transitionHeight),
		"-frames:v", "1",
		"-y", output,
	)
	if err != nil {
		return "", err
	}
	return output, nil
}

// transitionCurves returns the background and overlay envelope
// expressions over T for a transition of the given length: fade in,
// hold, fade out, clamped at zero past the end.
func transitionCurves(duration float64) (bg, overlay string) {
	fos := duration - fadeOutDur
	bg = fmt.Sprintf(
		"if(lt(T,%.4f), 1-%.4f*(T/%.4f), if(lt(T,%.4f), %.4f, max(%.4f*((%.4f-T)/%.4f),0)))",
		bgFadeInDur, 1-bgHoldOpacity, bgFadeInDur,
		fos, bgHoldOpacity,
		bgHoldOpacity, duration, fadeOutDur,
	)
	overlay = fmt.Sprintf(
		"if(lt(T,%.4f), T/%.4f, if(lt(T,%.4f), 1, max((%.4f-T)/%.4f,0)))",
		overlayRiseDur, overlayRiseDur,
		fos,
		duration, fadeOutDur,
	)
	return bg, overlay
}

// buildTransitionFilter builds the composition graph: both layers are
// multiplied by time-varying masks, then blended with lighten. Each
// mask is evaluated on a 2x2 synthetic frame and scaled to full size,
// so the curve costs a handful of expression evaluations per frame
// instead of one per pixel.
func buildTransitionFilter(duration float64) string {
	bgExpr, fgExpr := transitionCurves(duration)
	scale := fmt.Sprintf("scale=%d:%d", transitionWidth, transitionHeight)

	return fmt.Sprintf(
		"[0:v]%s,setsar=1,fps=%d,format=gbrp[bg];"+
			"[1:v]%s,setsar=1,fps=%d,format=gbrp[fg];"+
			"color=c=black:s=2x2:r=%d:d=%.4f,format=gray,geq=lum='255*%s',%s,format=gbrp[bgmask];"+
			"color=c=black:s=2x2:r=%d:d=%.4f,format=gray,geq=lum='255*%s',%s,format=gbrp[fgmask];"+
			"[bg][bgmask]blend=all_mode=multiply[bgdim];"+
			"[fg][fgmask]blend=all_mode=multiply[fglit];"+
			"[bgdim][fglit]blend=all_mode=lighten:shortest=1[outv]",
		scale, transitionFPS,
		scale, transitionFPS,
		transitionFPS, duration, bgExpr, scale,
		transitionFPS, duration, fgExpr, scale,
	)
}

// ComposeTransition layers the reactive overlay onto the frozen frame,
// attaches the narration audio, and crops to exactly its duration.
func (e *Engine) ComposeTransition(ctx context.Context, framePath, overlayPath, audioPath string, duration float64) (string, error) {
	output := e.ws.CombinedPath(TempName("transition", ".mp4"))
	filter := buildTransitionFilter(duration)

	log.Printf("[Media] Composing transition (%.2fs, frame=%s, overlay=%s)", duration, framePath, overlayPath)

	err := e.run(ctx,
		"-loop", "1",
		"-t", fmt.Sprintf("%.4f", duration),
		"-i", framePath,
		"-i", overlayPath,
		"-i", audioPath,
		"-filter_complex", filter,
		"-map", "[outv]",
		"-map", "2:a",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", fmt.Sprintf("%.4f", duration),
		"-y", output,
	)
	if err != nil {
		return "", err
	}
	return output, nil
}
