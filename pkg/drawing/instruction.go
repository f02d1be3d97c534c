// Package drawing renders declarative overlay instructions (polylines,
// circles, rectangles and text) onto frames.
//
// Coordinates are normalized to [0, 1] and scaled by (width-1, height-1).
// Malformed instructions, and draws OpenCV rejects, never fail a render: the
// frame is replaced by an error frame describing the problem.
package drawing

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strings"

	"gocv.io/x/gocv"
)

// Kind tags an instruction variant.
type Kind string

const (
	KindPolyline  Kind = "polyline"
	KindCircle    Kind = "circle"
	KindRectangle Kind = "rectangle"
	KindText      Kind = "text"
)

// Point is a normalized (x, y) position.
type Point struct {
	X, Y float64
}

// Instruction is one of *Polyline, *Circle, *Rectangle or *Text.
type Instruction interface {
	Kind() Kind
	Draw(frame *gocv.Mat) error
}

// Error describes an instruction that could not be interpreted. Msg is the
// text rendered on the error frame.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "drawing: " + e.Msg
}

var (
	defaultLineColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	defaultTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	errorTextColor   = color.RGBA{R: 255, G: 70, B: 20, A: 255}
)

// Polyline is an open or closed path. Thickness below 1 fills the polygon.
type Polyline struct {
	Points    []Point
	Closed    bool
	Color     color.RGBA
	Thickness int
	Antialias bool
}

func (*Polyline) Kind() Kind { return KindPolyline }

// Circle radius is a fraction of the frame diagonal. Negative thickness fills.
type Circle struct {
	Center    Point
	Radius    float64
	Color     color.RGBA
	Thickness int
	Antialias bool
}

func (*Circle) Kind() Kind { return KindCircle }

// Rectangle spans two normalized corners. Negative thickness fills.
type Rectangle struct {
	TopLeft     Point
	BottomRight Point
	Color       color.RGBA
	Thickness   int
	Antialias   bool
}

func (*Rectangle) Kind() Kind { return KindRectangle }

// Text is a message anchored at a normalized position. Background, when
// set, is drawn first at double thickness.
type Text struct {
	Message    string
	Anchor     Point
	AlignH     string
	AlignV     string
	Scale      float64
	Color      color.RGBA
	Background *color.RGBA
	Thickness  int
	Antialias  bool
}

func (*Text) Kind() Kind { return KindText }

// Parse decodes one JSON drawing instruction. Unknown fields are ignored.
// Every failure is an *Error.
func Parse(raw json.RawMessage) (Instruction, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &Error{Msg: fmt.Sprintf("Drawing instructions malformed! Got: %s", compact(raw))}
	}
	return ParseMap(obj)
}

// ParseMap interprets an already decoded instruction object.
func ParseMap(obj map[string]any) (Instruction, error) {
	tag, ok := obj["type"]
	if !ok || tag == nil {
		return nil, &Error{Msg: "Missing drawing type!"}
	}

	f := &fields{m: obj}
	var (
		inst Instruction
		kind = Kind(fmt.Sprint(tag))
	)
	switch kind {
	case KindPolyline:
		inst = parsePolyline(f)
	case KindCircle:
		inst = parseCircle(f)
	case KindRectangle:
		inst = parseRectangle(f)
	case KindText:
		inst = parseText(f)
	default:
		return nil, &Error{Msg: fmt.Sprintf("Unrecognized drawing type! (%v)", tag)}
	}

	if f.err != nil {
		return nil, &Error{Msg: fmt.Sprintf("(%s) Error: %v", kind, f.err)}
	}
	return inst, nil
}

func parsePolyline(f *fields) *Polyline {
	f.require("xy_points_norm")
	return &Polyline{
		Points:    f.points("xy_points_norm"),
		Closed:    f.flag("is_closed", false),
		Color:     f.rgb("color_rgb", defaultLineColor),
		Thickness: f.integer("thickness_px", 1),
		Antialias: f.flag("antialiased", true),
	}
}

func parseCircle(f *fields) *Circle {
	f.require("center_xy_norm")
	return &Circle{
		Center:    f.point("center_xy_norm", Point{}),
		Radius:    f.number("radius_norm", 0.05),
		Color:     f.rgb("color_rgb", defaultLineColor),
		Thickness: f.integer("thickness_px", 1),
		Antialias: f.flag("antialiased", true),
	}
}

func parseRectangle(f *fields) *Rectangle {
	f.require("top_left_norm")
	f.require("bottom_right_norm")
	return &Rectangle{
		TopLeft:     f.point("top_left_norm", Point{}),
		BottomRight: f.point("bottom_right_norm", Point{}),
		Color:       f.rgb("color_rgb", defaultLineColor),
		Thickness:   f.integer("thickness_px", 1),
		Antialias:   f.flag("antialiased", false),
	}
}

func parseText(f *fields) *Text {
	f.require("message")
	f.require("text_xy_norm")
	t := &Text{
		Message:   f.text("message", ""),
		Anchor:    f.point("text_xy_norm", Point{}),
		AlignH:    f.text("align_horizontal", "center"),
		AlignV:    f.text("align_vertical", "center"),
		Scale:     f.number("text_scale", 0.5),
		Color:     f.rgb("color_rgb", defaultTextColor),
		Thickness: f.integer("thickness_px", 1),
		Antialias: f.flag("antialiased", true),
	}
	if bg, ok := f.optionalRGB("bg_color_rgb"); ok {
		t.Background = &bg
	}
	return t
}

func compact(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
