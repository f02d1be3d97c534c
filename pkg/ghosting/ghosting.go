// Package ghosting highlights change between a live frame and a static
// background, hiding everything that did not move.
package ghosting

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrMissingBackground is returned when ghosting is requested without a
// usable background frame.
var ErrMissingBackground = errors.New("ghosting: missing background image")

// ErrEmptyFrame is returned for an empty live frame.
var ErrEmptyFrame = errors.New("ghosting: empty frame")

// ErrOverPixelated is returned when the pixelation factor shrinks a frame to
// nothing.
var ErrOverPixelated = errors.New("pixelation factor larger than the frame")

// Config controls the ghosting effect. Field names follow the request JSON.
type Config struct {
	Enabled           bool    `json:"enable"`
	BrightnessScaling float64 `json:"brightness_scaling"`
	BlurSize          int     `json:"blur_size"`
	PixelationFactor  int     `json:"pixelation_factor"`
}

// DefaultConfig is the configuration used by simple replays.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		BrightnessScaling: 1.5,
		BlurSize:          2,
		PixelationFactor:  3,
	}
}

// Apply returns a new frame owned by the caller. When ghosting is disabled
// it is a pixel-identical copy of frame.
func Apply(cfg Config, background, frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}
	if !cfg.Enabled {
		return frame.Clone(), nil
	}
	if background.Empty() {
		return gocv.NewMat(), ErrMissingBackground
	}

	size := image.Pt(frame.Cols(), frame.Rows())

	scaledBG := gocv.NewMat()
	defer scaledBG.Close()
	if err := gocv.Resize(background, &scaledBG, size, 0, 0, gocv.InterpolationArea); err != nil {
		return gocv.NewMat(), fmt.Errorf("ghosting: resize background: %w", err)
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(scaledBG, frame, &diff); err != nil {
		return gocv.NewMat(), fmt.Errorf("ghosting: difference: %w", err)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray); err != nil {
		return gocv.NewMat(), fmt.Errorf("ghosting: grayscale: %w", err)
	}

	if cfg.BlurSize > 0 {
		k := 1 + 2*cfg.BlurSize
		blurred := gocv.NewMat()
		if err := gocv.Blur(gray, &blurred, image.Pt(k, k)); err != nil {
			blurred.Close()
			return gocv.NewMat(), fmt.Errorf("ghosting: blur: %w", err)
		}
		gray.Close()
		gray = blurred
	}

	if cfg.PixelationFactor > 0 {
		blocky, err := Pixelate(gray, size, cfg.PixelationFactor)
		if err != nil {
			return gocv.NewMat(), err
		}
		gray.Close()
		gray = blocky
	}

	diff3 := gocv.NewMat()
	defer diff3.Close()
	if err := gocv.CvtColor(gray, &diff3, gocv.ColorGrayToBGR); err != nil {
		return gocv.NewMat(), fmt.Errorf("ghosting: expand difference: %w", err)
	}

	out := gocv.NewMat()
	if err := gocv.AddWeighted(scaledBG, 1.0, diff3, cfg.BrightnessScaling, 0.0, &out); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("ghosting: blend: %w", err)
	}
	return out, nil
}

// Pixelate shrinks src by 1/(1+factor) with area interpolation and scales it
// back up to size with nearest-neighbour, giving a blocky result. factor < 1
// returns a plain copy. A factor large enough to shrink src to nothing is an
// error.
func Pixelate(src gocv.Mat, size image.Point, factor int) (gocv.Mat, error) {
	if factor < 1 {
		return src.Clone(), nil
	}

	scale := 1.0 / float64(1+factor)
	shrunk := gocv.NewMat()
	defer shrunk.Close()
	if err := gocv.Resize(src, &shrunk, image.Point{}, scale, scale, gocv.InterpolationArea); err != nil {
		return gocv.NewMat(), fmt.Errorf("ghosting: pixelate factor %d: %w", factor, err)
	}
	if shrunk.Empty() {
		return gocv.NewMat(), fmt.Errorf("ghosting: pixelate factor %d: %w", factor, ErrOverPixelated)
	}

	out := gocv.NewMat()
	if err := gocv.Resize(shrunk, &out, size, 0, 0, gocv.InterpolationNearestNeighbor); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("ghosting: pixelate factor %d: %w", factor, err)
	}
	return out, nil
}
