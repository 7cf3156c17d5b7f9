package imaging

import (
	"errors"
	"math"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

var ErrSingular = errors.New("corner correspondences do not define a projective transform")

// Homography is a 3x3 projective transform with h[8] fixed at 1
type Homography [9]float64

// Apply maps (x, y). ok is false for points mapped to infinity.
func (h Homography) Apply(x, y float64) (u, v float64, ok bool) {
	w := h[6]*x + h[7]*y + h[8]
	if math.Abs(w) < 1e-12 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w, true
}

// SolveHomography finds the transform taking each from[i] to to[i]
func SolveHomography(from, to [4]models.Corner) (Homography, error) {
	// Each correspondence contributes two rows of the 8x9 augmented system
	//   x*h0 + y*h1 + h2 - u*x*h6 - u*y*h7 = u
	//   x*h3 + y*h4 + h5 - v*x*h6 - v*y*h7 = v
	var a [8][9]float64
	for i := range from {
		x, y := float64(from[i].X), float64(from[i].Y)
		u, v := float64(to[i].X), float64(to[i].Y)
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	for col := range 8 {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-9 {
			return Homography{}, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := range 8 {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	var h Homography
	for i := range 8 {
		h[i] = a[i][8] / a[i][i]
	}
	h[8] = 1
	return h, nil
}
