package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxStderr = 2048

// FFmpeg encodes by running an ffmpeg process over the frame directory.
type FFmpeg struct {
	path string
	opts options
}

// NewFFmpeg creates an encoder using the ffmpeg binary at path ("ffmpeg"
// resolves through PATH).
func NewFFmpeg(path string, opts ...Option) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, opts: buildOptions("video.ffmpeg", opts)}
}

// Args returns the ffmpeg arguments used to encode dir into out.
// Odd frame sizes are trimmed to even dimensions, which yuv420p requires.
func (f *FFmpeg) Args(dir, out string, fps float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-framerate", strconv.FormatFloat(ClampFrameRate(fps), 'f', -1, 64),
		"-pattern_type", "glob",
		"-i", filepath.Join(dir, "*"+frameExt),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-movflags", "+faststart",
		out,
	}
}

// Encode runs ffmpeg and returns the MP4 bytes.
func (f *FFmpeg) Encode(ctx context.Context, dir string, fps float64) ([]byte, error) {
	frames, err := Frames(dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	out := filepath.Join(dir, outputName)
	cmd := exec.CommandContext(ctx, f.path, f.Args(dir, out, fps)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), maxStderr))
	}
	f.opts.logger.Debug("encoded video",
		"frames", len(frames),
		"fps", ClampFrameRate(fps),
		"elapsed", time.Since(start))

	return readOutput(out)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
