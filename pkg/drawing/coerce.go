package drawing

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// fields coerces loosely typed payload values. The first failure sticks in
// err and later lookups return their defaults.
type fields struct {
	m   map[string]any
	err error
}

func (f *fields) fail(key string, format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...))
	}
}

func (f *fields) lookup(key string) (any, bool) {
	v, ok := f.m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (f *fields) require(key string) {
	if _, ok := f.lookup(key); !ok {
		f.fail(key, "missing required argument")
	}
}

func (f *fields) number(key string, def float64) float64 {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	x, err := toFloat(v)
	if err != nil {
		f.fail(key, "%v", err)
		return def
	}
	return x
}

func (f *fields) integer(key string, def int) int {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			f.fail(key, "invalid literal for int: %q", n)
			return def
		}
		return i
	}
	x, err := toFloat(v)
	if err != nil {
		f.fail(key, "%v", err)
		return def
	}
	return int(x)
}

// flag never rejects a value. Strings strconv can read keep their meaning;
// anything else is true when non-empty, as are non-empty lists and objects.
func (f *fields) flag(key string, def bool) bool {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		return b != ""
	case []any:
		return len(b) > 0
	case map[string]any:
		return len(b) > 0
	default:
		return true
	}
}

func (f *fields) text(key string, def string) string {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (f *fields) point(key string, def Point) Point {
	v, ok := f.lookup(key)
	if !ok {
		return def
	}
	p, err := toPoint(v)
	if err != nil {
		f.fail(key, "%v", err)
		return def
	}
	return p
}

func (f *fields) points(key string) []Point {
	v, ok := f.lookup(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		f.fail(key, "expected a list of xy pairs, got %v", v)
		return nil
	}
	if len(list) == 0 {
		f.fail(key, "no points given")
		return nil
	}
	pts := make([]Point, 0, len(list))
	for _, item := range list {
		p, err := toPoint(item)
		if err != nil {
			f.fail(key, "%v", err)
			return nil
		}
		pts = append(pts, p)
	}
	return pts
}

func (f *fields) rgb(key string, def color.RGBA) color.RGBA {
	c, ok := f.optionalRGB(key)
	if !ok {
		return def
	}
	return c
}

func (f *fields) optionalRGB(key string) (color.RGBA, bool) {
	v, ok := f.lookup(key)
	if !ok {
		return color.RGBA{}, false
	}
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		f.fail(key, "expected 3 color values, got %v", v)
		return color.RGBA{}, false
	}
	var ch [3]uint8
	for i, item := range list {
		x, err := toFloat(item)
		if err != nil {
			f.fail(key, "%v", err)
			return color.RGBA{}, false
		}
		ch[i] = clampByte(x)
	}
	return color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 255}, true
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("not a finite number: %v", n)
		}
		return n, nil
	case int:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		x, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", n)
		}
		return x, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func toPoint(v any) (Point, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return Point{}, fmt.Errorf("expected an xy pair, got %v", v)
	}
	x, err := toFloat(pair[0])
	if err != nil {
		return Point{}, err
	}
	y, err := toFloat(pair[1])
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

func clampByte(x float64) uint8 {
	switch {
	case x <= 0:
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(x)
	}
}
