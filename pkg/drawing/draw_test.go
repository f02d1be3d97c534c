package drawing

import (
	"encoding/json"
	"errors"
	"image"
	"strings"
	"testing"

	"gocv.io/x/gocv"
)

func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func isInk(frame gocv.Mat, row, col int) bool {
	v := frame.GetVecbAt(row, col)
	return v[0] != 0 || v[1] != 0 || v[2] != 0
}

// inkColumns returns the first and last columns holding non-zero pixels.
func inkColumns(frame gocv.Mat) (first, last int) {
	first, last = -1, -1
	for c := 0; c < frame.Cols(); c++ {
		for r := 0; r < frame.Rows(); r++ {
			if isInk(frame, r, c) {
				if first < 0 {
					first = c
				}
				last = c
				break
			}
		}
	}
	return first, last
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		wantErr string
	}{
		{"polyline", `{"type":"polyline","xy_points_norm":[[0,0],[1,1]]}`, KindPolyline, ""},
		{"circle extra fields", `{"type":"circle","center_xy_norm":[0.5,0.5],"future":{"a":1},"radius_px":9}`, KindCircle, ""},
		{"rectangle", `{"type":"rectangle","top_left_norm":[0.1,0.1],"bottom_right_norm":[0.9,0.9]}`, KindRectangle, ""},
		{"text", `{"type":"text","message":"hi","text_xy_norm":[0.5,0.5]}`, KindText, ""},
		{"string numbers coerce", `{"type":"circle","center_xy_norm":["0.5","0.5"],"thickness_px":"3"}`, KindCircle, ""},
		{"loose antialiased flag", `{"type":"circle","center_xy_norm":[0.5,0.5],"antialiased":"yes"}`, KindCircle, ""},
		{"missing type", `{"center_xy_norm":[0.5,0.5]}`, "", "Missing drawing type!"},
		{"unknown type", `{"type":"hexagon"}`, "", "Unrecognized drawing type! (hexagon)"},
		{"not an object", `[1,2,3]`, "", "Drawing instructions malformed! Got: [1,2,3]"},
		{"bad thickness", `{"type":"circle","center_xy_norm":[0.5,0.5],"thickness_px":"thick"}`, "", "(circle) Error:"},
		{"missing points", `{"type":"polyline"}`, "", "(polyline) Error: xy_points_norm"},
		{"empty points", `{"type":"polyline","xy_points_norm":[]}`, "", "(polyline) Error:"},
		{"bad color", `{"type":"rectangle","top_left_norm":[0,0],"bottom_right_norm":[1,1],"color_rgb":[1,2]}`, "", "(rectangle) Error: color_rgb"},
		{"missing message", `{"type":"text","text_xy_norm":[0.5,0.5]}`, "", "(text) Error: message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inst, err := Parse(json.RawMessage(tc.raw))
			if tc.wantErr != "" {
				var derr *Error
				if !errors.As(err, &derr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if !strings.HasPrefix(derr.Msg, tc.wantErr) {
					t.Errorf("message = %q, want prefix %q", derr.Msg, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inst.Kind() != tc.kind {
				t.Errorf("kind = %q, want %q", inst.Kind(), tc.kind)
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	inst, err := Parse(json.RawMessage(`{"type":"text","message":"x","text_xy_norm":[0,0]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	text := inst.(*Text)
	if text.AlignH != "center" || text.AlignV != "center" {
		t.Errorf("alignment defaults = %q/%q", text.AlignH, text.AlignV)
	}
	if text.Scale != 0.5 || text.Thickness != 1 || !text.Antialias || text.Background != nil {
		t.Errorf("unexpected defaults: %+v", text)
	}

	inst, err = Parse(json.RawMessage(`{"type":"rectangle","top_left_norm":[0,0],"bottom_right_norm":[1,1]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rect := inst.(*Rectangle); rect.Antialias || rect.Color != defaultLineColor {
		t.Errorf("unexpected rectangle defaults: %+v", rect)
	}
}

func TestFlag(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{`{}`, true, true},
		{`{"f":null}`, true, true},
		{`{"f":false}`, true, false},
		{`{"f":0}`, true, false},
		{`{"f":2}`, false, true},
		{`{"f":"false"}`, true, false},
		{`{"f":" 1 "}`, false, true},
		{`{"f":"yes"}`, false, true},
		{`{"f":"no"}`, false, true},
		{`{"f":""}`, true, false},
		{`{"f":[]}`, true, false},
		{`{"f":[0]}`, false, true},
		{`{"f":{}}`, true, false},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			var obj map[string]any
			if err := json.Unmarshal([]byte(tc.raw), &obj); err != nil {
				t.Fatal(err)
			}
			f := &fields{m: obj}
			if got := f.flag("f", tc.def); got != tc.want {
				t.Errorf("flag = %v, want %v", got, tc.want)
			}
		})
	}
}

type brokenInstruction struct{}

func (brokenInstruction) Kind() Kind { return KindCircle }

func (brokenInstruction) Draw(*gocv.Mat) error { return errors.New("bad depth") }

func TestDrawFailureRendersErrorFrame(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 120, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	err := NewInterpreter().render(&frame, brokenInstruction{})
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if derr.Msg != "(circle) Error: bad depth" {
		t.Errorf("message = %q", derr.Msg)
	}
	if isInk(frame, 0, 0) {
		t.Error("error frame background should be blank")
	}
	gray := toGray(frame)
	defer gray.Close()
	if gocv.CountNonZero(gray) == 0 {
		t.Error("error frame has no message")
	}
}

func TestDrawCircleIgnoresExtraFields(t *testing.T) {
	frame := blank(101, 101)
	defer frame.Close()

	raw := json.RawMessage(`{"type":"circle","center_xy_norm":[0.5,0.5],"radius_norm":0.1,
		"color_rgb":[255,0,0],"thickness_px":-1,"label":"person","meta":{"id":7}}`)
	if err := NewInterpreter().Draw(&frame, raw); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	// Frames are BGR, so red lands in channel 2.
	v := frame.GetVecbAt(50, 50)
	if v[0] != 0 || v[1] != 0 || v[2] != 255 {
		t.Errorf("centre pixel = %v, want BGR (0,0,255)", v)
	}
	if isInk(frame, 0, 0) {
		t.Error("filled circle leaked into the corner")
	}
}

func TestDrawMissingTypeRendersErrorFrame(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 120, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	err := NewInterpreter().Draw(&frame, json.RawMessage(`{"center_xy_norm":[0.5,0.5]}`))
	if err == nil {
		t.Fatal("expected an error report")
	}

	if frame.Rows() != 120 || frame.Cols() != 320 {
		t.Fatalf("frame resized to %dx%d", frame.Cols(), frame.Rows())
	}
	if isInk(frame, 0, 0) {
		t.Error("error frame background should be blank")
	}
	gray := toGray(frame)
	defer gray.Close()
	if gocv.CountNonZero(gray) == 0 {
		t.Error("error frame has no message")
	}
}

func toGray(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	return gray
}

func TestDrawUsesOffByOneScaling(t *testing.T) {
	frame := blank(11, 11)
	defer frame.Close()

	raw := json.RawMessage(`{"type":"rectangle","top_left_norm":[1,1],"bottom_right_norm":[1,1],"thickness_px":-1,"color_rgb":[255,255,255]}`)
	if err := NewInterpreter().Draw(&frame, raw); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	if !isInk(frame, 10, 10) {
		t.Error("normalized 1.0 should land on the last pixel")
	}
	if isInk(frame, 9, 9) {
		t.Error("single-pixel rectangle spilled over")
	}
}

func TestDrawComposesInOrder(t *testing.T) {
	frame := blank(21, 21)
	defer frame.Close()

	raws := []json.RawMessage{
		json.RawMessage(`{"type":"rectangle","top_left_norm":[0,0],"bottom_right_norm":[1,1],"thickness_px":-1,"color_rgb":[0,0,255]}`),
		json.RawMessage(`{"type":"rectangle","top_left_norm":[0.5,0.5],"bottom_right_norm":[0.5,0.5],"thickness_px":-1,"color_rgb":[0,255,0]}`),
	}
	if failed := NewInterpreter().DrawAll(&frame, raws); failed != 0 {
		t.Fatalf("%d instructions failed", failed)
	}

	if v := frame.GetVecbAt(10, 10); v[1] != 255 || v[0] != 0 {
		t.Errorf("later instruction should draw on top, got %v", v)
	}
	if v := frame.GetVecbAt(0, 0); v[0] != 255 {
		t.Errorf("earlier instruction should remain elsewhere, got %v", v)
	}
}

func TestDrawPolyline(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ink  [2]int
	}{
		{"stroked", `{"type":"polyline","xy_points_norm":[[0,0.5],[1,0.5]],"thickness_px":1}`, [2]int{20, 30}},
		{"filled", `{"type":"polyline","xy_points_norm":[[0,0],[1,0],[1,1],[0,1]],"thickness_px":0,"antialiased":false}`, [2]int{5, 35}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame := blank(41, 41)
			defer frame.Close()
			if err := NewInterpreter().Draw(&frame, json.RawMessage(tc.raw)); err != nil {
				t.Fatalf("Draw: %v", err)
			}
			if !isInk(frame, tc.ink[0], tc.ink[1]) {
				t.Errorf("expected ink at row %d col %d", tc.ink[0], tc.ink[1])
			}
		})
	}
}

func TestTextAlignment(t *testing.T) {
	const cols = 400
	anchorX := 200 // 0.5 * (cols-1) rounds half to even

	tests := []struct {
		align string
		check func(t *testing.T, first, last int)
	}{
		{"right", func(t *testing.T, first, last int) {
			if last > anchorX {
				t.Errorf("rightmost ink at %d, past anchor %d", last, anchorX)
			}
		}},
		{"left", func(t *testing.T, first, last int) {
			if first < anchorX {
				t.Errorf("leftmost ink at %d, before anchor %d", first, anchorX)
			}
		}},
		{"center", func(t *testing.T, first, last int) {
			mid := (first + last) / 2
			if d := mid - anchorX; d < -4 || d > 4 {
				t.Errorf("ink centred at %d, anchor %d", mid, anchorX)
			}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.align, func(t *testing.T) {
			frame := blank(100, cols)
			defer frame.Close()

			raw := json.RawMessage(`{"type":"text","message":"HHHH","text_xy_norm":[0.5,0.5],
				"text_scale":1.0,"antialiased":false,"align_horizontal":"` + tc.align + `"}`)
			if err := NewInterpreter().Draw(&frame, raw); err != nil {
				t.Fatalf("Draw: %v", err)
			}

			first, last := inkColumns(frame)
			if first < 0 {
				t.Fatal("no text rendered")
			}
			tc.check(t, first, last)
		})
	}
}

func TestTextOrigin(t *testing.T) {
	size := image.Pt(40, 10)
	tests := []struct {
		h, v   string
		wantDX int
		wantDY int
	}{
		{"left", "top", 0, 10},
		{"center", "center", -20, 3},
		{"right", "bottom", -40, -3},
		{"RIGHT", "Top", -40, 10},
		{"sideways", "nowhere", 0, 10},
	}

	for _, tc := range tests {
		t.Run(tc.h+"/"+tc.v, func(t *testing.T) {
			text := &Text{AlignH: tc.h, AlignV: tc.v}
			got := text.origin(image.Pt(100, 50), size, 3)
			want := image.Pt(1+100+tc.wantDX, 1+50+tc.wantDY)
			if got != want {
				t.Errorf("origin = %v, want %v", got, want)
			}
		})
	}
}
