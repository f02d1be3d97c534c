package perspective

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when the quad cannot be mapped onto the unit
// square by an invertible homography (repeated or collinear corners).
var ErrDegenerate = errors.New("perspective: degenerate quad")

// detEpsilon guards against homographies that solved but are singular
// for practical purposes.
const detEpsilon = 1e-12

// Matrix is a 3x3 homography in row-major order.
type Matrix [3][3]float64

// Apply maps p through the homography: (Nx, Ny, D) = M·(x, y, 1),
// result (Nx/D, Ny/D).
func (m Matrix) Apply(p Point) Point {
	nx := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]
	ny := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]
	d := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]
	return Point{X: nx / d, Y: ny / d}
}

// Rows returns the matrix as nested slices, the shape API clients consume.
func (m Matrix) Rows() [][]float64 {
	rows := make([][]float64, 3)
	for i := range m {
		rows[i] = []float64{m[i][0], m[i][1], m[i][2]}
	}
	return rows
}

func (m Matrix) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

func matrixFromDense(d *mat.Dense) Matrix {
	var m Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Transform solves the four-point homography taking src[i] to dst[i].
// The bottom-right coefficient is fixed at 1, leaving 8 unknowns.
func Transform(src, dst Quad) (Matrix, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := range src {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var m Matrix
	for k := 0; k < 8; k++ {
		m[k/3][k%3] = h.AtVec(k)
	}
	m[2][2] = 1

	if !finite(m) {
		return Matrix{}, fmt.Errorf("%w: non-finite coefficients", ErrDegenerate)
	}
	return m, nil
}

// Inverse returns m⁻¹, or ErrDegenerate when m is singular.
func Inverse(m Matrix) (Matrix, error) {
	fwd := m.dense()
	if math.Abs(mat.Det(fwd)) < detEpsilon {
		return Matrix{}, fmt.Errorf("%w: singular matrix", ErrDegenerate)
	}

	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	return matrixFromDense(&inv), nil
}

// Solve computes the forward (quad -> unit square) and inverse
// (unit square -> quad) homographies.
func Solve(q Quad) (forward, inverse Matrix, err error) {
	forward, err = Transform(q, UnitSquare)
	if err != nil {
		return Matrix{}, Matrix{}, err
	}
	inverse, err = Inverse(forward)
	if err != nil {
		return Matrix{}, Matrix{}, err
	}
	return forward, inverse, nil
}

// Correction is the response shape for a perspective request. Invalid
// (degenerate) quads carry empty matrices.
type Correction struct {
	Valid   bool        `json:"is_valid"`
	Forward [][]float64 `json:"in_to_out_warp_matrix"`
	Inverse [][]float64 `json:"out_to_in_warp_matrix"`
}

// Calculate validates raw (a decoded JSON value) and solves it. Only
// validation problems are returned as errors; a degenerate quad yields a
// Correction with Valid=false.
func Calculate(raw any) (Correction, error) {
	q, err := ParseQuad(raw)
	if err != nil {
		return Correction{}, err
	}

	fwd, inv, err := Solve(q)
	if err != nil {
		return Correction{Valid: false, Forward: [][]float64{}, Inverse: [][]float64{}}, nil
	}
	return Correction{Valid: true, Forward: fwd.Rows(), Inverse: inv.Rows()}, nil
}

func finite(m Matrix) bool {
	for i := range m {
		for j := range m[i] {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}
