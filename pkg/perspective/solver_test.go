package perspective

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-4

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < tolerance && math.Abs(a.Y-b.Y) < tolerance
}

func TestSolveMapsCornersToUnitSquare(t *testing.T) {
	tests := []struct {
		name string
		quad Quad
	}{
		{"identity", UnitSquare},
		{"trapezoid", Quad{{0.2, 0.1}, {0.8, 0.1}, {0.9, 0.9}, {0.1, 0.9}}},
		{"skewed", Quad{{0.05, 0.3}, {0.7, 0.05}, {0.95, 0.6}, {0.25, 0.95}}},
		{"pixel coords", Quad{{10, 20}, {630, 5}, {600, 470}, {40, 450}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fwd, inv, err := Solve(tc.quad)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			for i, p := range tc.quad {
				if got := fwd.Apply(p); !near(got, UnitSquare[i]) {
					t.Errorf("corner %d: forward(%v) = %v, want %v", i, p, got, UnitSquare[i])
				}
				if got := inv.Apply(UnitSquare[i]); !near(got, p) {
					t.Errorf("corner %d: inverse(%v) = %v, want %v", i, UnitSquare[i], got, p)
				}
			}
		})
	}
}

func TestSolveRoundTrip(t *testing.T) {
	q := Quad{{0.2, 0.1}, {0.8, 0.15}, {0.9, 0.9}, {0.1, 0.85}}
	fwd, inv, err := Solve(q)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for _, p := range []Point{{0.5, 0.5}, {0.3, 0.2}, {0.75, 0.8}} {
		if got := inv.Apply(fwd.Apply(p)); !near(got, p) {
			t.Errorf("round trip of %v = %v", p, got)
		}
	}
}

func TestSolveDegenerate(t *testing.T) {
	tests := []struct {
		name string
		quad Quad
	}{
		{"three collinear", Quad{{0, 0}, {0.5, 0}, {1, 0}, {0, 1}}},
		{"repeated corner", Quad{{0, 0}, {0, 0}, {1, 1}, {0, 1}}},
		{"all same", Quad{{0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Solve(tc.quad)
			if !errors.Is(err, ErrDegenerate) {
				t.Errorf("expected ErrDegenerate, got %v", err)
			}
		})
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   string
		wantValid bool
	}{
		{"valid", `[[0.2,0.1],[0.8,0.1],[0.9,0.9],[0.1,0.9]]`, "", true},
		{"integers", `[[0,0],[1,0],[1,1],[0,1]]`, "", true},
		{"collinear", `[[0,0],[0.5,0],[1,0],[0,1]]`, "", false},
		{"three points", `[[0,0],[1,0],[1,1]]`, msgBadFormat, false},
		{"five points", `[[0,0],[1,0],[1,1],[0,1],[0.5,0.5]]`, msgBadFormat, false},
		{"three coords", `[[0,0,0],[1,0],[1,1],[0,1]]`, msgBadFormat, false},
		{"not a list", `{"a":1}`, msgNotAList, false},
		{"entry not a pair", `[1,2,3,4]`, msgNotPairs, false},
		{"string coord", `[["a",0],[1,0],[1,1],[0,1]]`, msgNotNumeric, false},
		{"bool coord", `[[true,0],[1,0],[1,1],[0,1]]`, msgNotNumeric, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var raw any
			if err := json.Unmarshal([]byte(tc.body), &raw); err != nil {
				t.Fatalf("bad fixture: %v", err)
			}

			got, err := Calculate(raw)
			if tc.wantErr != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Msg != tc.wantErr {
					t.Errorf("message = %q, want %q", verr.Msg, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Valid != tc.wantValid {
				t.Errorf("Valid = %v, want %v", got.Valid, tc.wantValid)
			}
			if tc.wantValid && (len(got.Forward) != 3 || len(got.Inverse) != 3) {
				t.Errorf("expected 3x3 matrices, got %v / %v", got.Forward, got.Inverse)
			}
			if !tc.wantValid && (len(got.Forward) != 0 || len(got.Inverse) != 0) {
				t.Errorf("expected empty matrices for invalid quad, got %v / %v", got.Forward, got.Inverse)
			}
		})
	}
}

func TestCorrectionJSON(t *testing.T) {
	c, err := Calculate([]any{
		[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{1.0, 1.0}, []any{0.0, 1.0},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"is_valid", "in_to_out_warp_matrix", "out_to_in_warp_matrix"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}
