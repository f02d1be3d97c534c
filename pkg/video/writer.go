package video

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

// Writer encodes through OpenCV's VideoWriter. It needs no external binary
// but depends on the codecs compiled into OpenCV.
type Writer struct {
	codec string
	opts  options
}

// NewWriter creates an OpenCV-backed encoder using the mp4v codec.
func NewWriter(opts ...Option) *Writer {
	return &Writer{codec: "mp4v", opts: buildOptions("video.writer", opts)}
}

// Encode writes every frame to an MP4 sized after the first frame. Frames
// of a different size are resized to match. ctx is checked between frames.
func (w *Writer) Encode(ctx context.Context, dir string, fps float64) ([]byte, error) {
	frames, err := Frames(dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	first := gocv.IMRead(frames[0], gocv.IMReadColor)
	if first.Empty() {
		first.Close()
		return nil, fmt.Errorf("video: unreadable frame %s", filepath.Base(frames[0]))
	}
	size := image.Pt(first.Cols(), first.Rows())
	first.Close()

	out := filepath.Join(dir, outputName)
	vw, err := gocv.VideoWriterFile(out, w.codec, ClampFrameRate(fps), size.X, size.Y, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer: %w", err)
	}

	start := time.Now()
	written, err := w.writeFrames(ctx, vw, frames, size)
	if cerr := vw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close video writer: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	if written == 0 {
		return nil, ErrNoFrames
	}

	w.opts.logger.Debug("encoded video",
		"frames", written,
		"fps", ClampFrameRate(fps),
		"elapsed", time.Since(start))

	return readOutput(out)
}

func (w *Writer) writeFrames(ctx context.Context, vw *gocv.VideoWriter, frames []string, size image.Point) (int, error) {
	resized := gocv.NewMat()
	defer resized.Close()

	written := 0
	for _, path := range frames {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			w.opts.logger.Warn("skipping unreadable frame", "frame", filepath.Base(path))
			continue
		}

		frame := img
		if img.Cols() != size.X || img.Rows() != size.Y {
			if err := gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationArea); err != nil {
				img.Close()
				return written, fmt.Errorf("resize frame %s: %w", filepath.Base(path), err)
			}
			frame = resized
		}
		err := vw.Write(frame)
		img.Close()
		if err != nil {
			return written, fmt.Errorf("write frame %s: %w", filepath.Base(path), err)
		}
		written++
	}
	return written, nil
}
