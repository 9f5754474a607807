package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is the local media tree shared with the renderer services.
// Every artifact the pipeline produces lands in one of its subtrees.
type Workspace struct {
	root string
}

const (
	dirAudio    = "audio"
	dirVideo    = "video"
	dirFrames   = "frames"
	dirCombined = "combined"
)

// NewWorkspace creates the media root and its subtrees if missing.
func NewWorkspace(root string) (*Workspace, error) {
	for _, sub := range []string{dirAudio, dirVideo, dirFrames, dirCombined} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create media dir %s: %w", sub, err)
		}
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) AudioPath(name string) string    { return filepath.Join(w.root, dirAudio, name) }
func (w *Workspace) VideoPath(name string) string    { return filepath.Join(w.root, dirVideo, name) }
func (w *Workspace) FramePath(name string) string    { return filepath.Join(w.root, dirFrames, name) }
func (w *Workspace) CombinedPath(name string) string { return filepath.Join(w.root, dirCombined, name) }

// TempName returns a unique filename with the given prefix and extension.
func TempName(prefix, ext string) string {
	return fmt.Sprintf("%s_%s%s", prefix, uuid.New().String(), ext)
}

// WriteAudio stores raw synthesized audio bytes under the audio subtree
// and returns the absolute path.
func (w *Workspace) WriteAudio(name string, data []byte) (string, error) {
	path := w.AudioPath(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return path, nil
}

// Cleanup removes temporary files, ignoring misses.
func (w *Workspace) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

// derivedPath places a sibling of input with a suffix before the
// extension: /m/video/a.mp4 + "_matched" -> /m/video/a_matched.mp4.
func derivedPath(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + suffix + ext
}

// CopyFile copies src to dst, replacing dst if present.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
