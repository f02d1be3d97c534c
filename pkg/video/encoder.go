// Package video turns a directory of numbered JPEG frames into an MP4.
//
// Frames are written by the caller with FrameName so that lexical order is
// frame order; encoders only ever read the directory.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Frame rate limits applied before any encoder runs.
const (
	MinFrameRate = 0.5
	MaxFrameRate = 30.0
)

const (
	frameExt       = ".jpg"
	frameNameWidth = 20
	outputName     = "output.mp4"
)

// ErrNoFrames is returned when the scratch directory holds no frames.
var ErrNoFrames = errors.New("video: no frames to encode")

// Encoder produces MP4 bytes from the frames in dir.
type Encoder interface {
	Encode(ctx context.Context, dir string, fps float64) ([]byte, error)
}

// Option configures an encoder.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(component string, opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}

// New returns the encoder named by kind ("ffmpeg" or "opencv"). ffmpegPath
// is only used by the ffmpeg encoder.
func New(kind, ffmpegPath string, opts ...Option) (Encoder, error) {
	switch strings.ToLower(kind) {
	case "", "ffmpeg":
		return NewFFmpeg(ffmpegPath, opts...), nil
	case "opencv":
		return NewWriter(opts...), nil
	default:
		return nil, fmt.Errorf("video: unknown encoder %q", kind)
	}
}

// ClampFrameRate limits fps to [MinFrameRate, MaxFrameRate].
func ClampFrameRate(fps float64) float64 {
	if math.IsNaN(fps) {
		return MinFrameRate
	}
	return math.Min(MaxFrameRate, math.Max(MinFrameRate, fps))
}

// FrameName is the scratch file name for frame index i, left-padded with
// zeros to a fixed width.
func FrameName(i int) string {
	name := fmt.Sprintf("%d%s", i, frameExt)
	if pad := frameNameWidth - len(name); pad > 0 {
		name = strings.Repeat("0", pad) + name
	}
	return name
}

// Frames lists the frame files in dir in encode order.
func Frames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), frameExt) {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

func readOutput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read encoded video: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("video: encoder produced an empty file")
	}
	return data, nil
}
