package drawing

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"

	"gocv.io/x/gocv"
)

const (
	// maxThickness is OpenCV's upper bound for stroke widths.
	maxThickness = 32767
	filled       = -1
	font         = gocv.FontHersheySimplex
)

// Interpreter applies instruction lists to frames.
type Interpreter struct {
	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// NewInterpreter creates an interpreter.
func NewInterpreter(opts ...Option) *Interpreter {
	i := &Interpreter{logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "drawing.interpreter")
	return i
}

// Draw renders one raw instruction onto frame. A malformed instruction, or
// one OpenCV fails to draw, turns frame into an error frame; the returned
// error only reports that this happened.
func (i *Interpreter) Draw(frame *gocv.Mat, raw json.RawMessage) error {
	inst, err := Parse(raw)
	if err != nil {
		i.fail(frame, err)
		return err
	}
	return i.render(frame, inst)
}

func (i *Interpreter) render(frame *gocv.Mat, inst Instruction) error {
	if err := inst.Draw(frame); err != nil {
		derr := &Error{Msg: fmt.Sprintf("(%s) Error: %v", inst.Kind(), err)}
		i.fail(frame, derr)
		return derr
	}
	return nil
}

// DrawAll renders instructions in order, later ones over earlier ones. It
// returns how many produced an error frame.
func (i *Interpreter) DrawAll(frame *gocv.Mat, raws []json.RawMessage) int {
	failed := 0
	for _, raw := range raws {
		if err := i.Draw(frame, raw); err != nil {
			failed++
		}
	}
	return failed
}

func (i *Interpreter) fail(frame *gocv.Mat, err error) {
	var derr *Error
	msg := err.Error()
	if errors.As(err, &derr) {
		msg = derr.Msg
	}
	i.logger.Debug("drawing instruction rejected", "error", msg)
	if err := ErrorFrame(frame, msg); err != nil {
		i.logger.Warn("error frame text not drawn", "error", err)
	}
}

// ErrorFrame blanks frame and writes msg across its centre in the alert color.
func ErrorFrame(frame *gocv.Mat, msg string) error {
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	t := &Text{
		Message:   msg,
		Anchor:    Point{X: 0.5, Y: 0.5},
		AlignH:    "center",
		AlignV:    "center",
		Scale:     0.4,
		Color:     errorTextColor,
		Thickness: 1,
		Antialias: true,
	}
	return t.Draw(frame)
}

// scale maps normalized coordinates onto (width-1, height-1), rounding half
// to even.
func scale(frame *gocv.Mat, p Point) image.Point {
	w, h := frameScale(frame)
	return image.Pt(int(math.RoundToEven(p.X*w)), int(math.RoundToEven(p.Y*h)))
}

func frameScale(frame *gocv.Mat) (float64, float64) {
	return float64(frame.Cols() - 1), float64(frame.Rows() - 1)
}

func lineType(antialias bool) gocv.LineType {
	if antialias {
		return gocv.LineAA
	}
	return gocv.Line4
}

func stroke(thickness int) int {
	switch {
	case thickness < 1:
		return filled
	case thickness > maxThickness:
		return maxThickness
	default:
		return thickness
	}
}

// Draw strokes or fills the path. Stroked paths always use 8-connected lines.
func (p *Polyline) Draw(frame *gocv.Mat) error {
	pts := make([]image.Point, len(p.Points))
	for i, pt := range p.Points {
		pts[i] = scale(frame, pt)
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()

	if p.Thickness < 1 {
		return gocv.FillPolyWithParams(frame, pv, p.Color, lineType(p.Antialias), 0, image.Point{})
	}
	return gocv.Polylines(frame, pv, p.Closed, p.Color, stroke(p.Thickness))
}

// Draw renders the circle with radius = round(r * |(w-1, h-1)|).
func (c *Circle) Draw(frame *gocv.Mat) error {
	w, h := frameScale(frame)
	radius := int(math.RoundToEven(c.Radius * math.Hypot(w, h)))
	if radius < 0 {
		radius = 0
	}
	return gocv.CircleWithParams(frame, scale(frame, c.Center), radius, c.Color, stroke(c.Thickness), lineType(c.Antialias), 0)
}

// Draw renders the rectangle with both corners inclusive.
func (r *Rectangle) Draw(frame *gocv.Mat) error {
	a, b := scale(frame, r.TopLeft), scale(frame, r.BottomRight)
	rect := image.Rect(min(a.X, b.X), min(a.Y, b.Y), max(a.X, b.X)+1, max(a.Y, b.Y)+1)
	return gocv.RectangleWithParams(frame, rect, r.Color, stroke(r.Thickness), lineType(r.Antialias), 0)
}

// Draw renders the message aligned around its anchor using the measured text
// extents, nudged one pixel right and down.
func (t *Text) Draw(frame *gocv.Mat) error {
	thickness := max(1, min(t.Thickness, maxThickness))
	size, baseline := gocv.GetTextSizeWithBaseline(t.Message, font, t.Scale, thickness)
	origin := t.origin(scale(frame, t.Anchor), size, baseline)
	lt := lineType(t.Antialias)

	if t.Background != nil {
		if err := putText(frame, t.Message, origin, t.Scale, *t.Background, 2*thickness, lt); err != nil {
			return err
		}
	}
	return putText(frame, t.Message, origin, t.Scale, t.Color, thickness, lt)
}

func (t *Text) origin(anchor, size image.Point, baseline int) image.Point {
	var dx int
	switch strings.ToLower(t.AlignH) {
	case "center":
		dx = -(size.X / 2)
	case "right":
		dx = -size.X
	default:
		dx = 0
	}

	var dy int
	switch strings.ToLower(t.AlignV) {
	case "center":
		dy = baseline
	case "bottom":
		dy = -baseline
	default:
		dy = size.Y
	}

	return image.Pt(1+anchor.X+dx, 1+anchor.Y+dy)
}

func putText(frame *gocv.Mat, msg string, org image.Point, fontScale float64, c color.RGBA, thickness int, lt gocv.LineType) error {
	return gocv.PutTextWithParams(frame, msg, org, font, fontScale, c, thickness, lt, false)
}
