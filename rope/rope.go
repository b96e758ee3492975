// Package rope implements rotary position embeddings over plain float32
// vectors. Dimension pairs (2i, 2i+1) are rotated by pos * base^(-2i/d).
package rope

import "math"

// Rotate writes into dst the rotation of x at position pos. dst and x must
// have the same even length; they may alias.
func Rotate(dst, x []float32, pos int32, base float64) {
	if len(dst) != len(x) {
		panic("rope: mismatched vector lengths")
	}
	if len(x)%2 != 0 {
		panic("rope: vector length must be even")
	}

	d := float64(len(x))
	for i := 0; i < len(x); i += 2 {
		theta := math.Pow(base, -float64(i)/d)
		angle := float64(pos) * theta

		sin, cos := math.Sincos(angle)

		x0, x1 := float64(x[i]), float64(x[i+1])
		dst[i] = float32(x0*cos - x1*sin)
		dst[i+1] = float32(x0*sin + x1*cos)
	}
}

// Apply rotates x in place at position pos.
func Apply(x []float32, pos int32, base float64) {
	Rotate(x, x, pos, base)
}
