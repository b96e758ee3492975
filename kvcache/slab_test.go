package kvcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDType(t *testing.T) {
	cases := []struct {
		in   string
		want DType
	}{
		{"", DTypeF32},
		{"f32", DTypeF32},
		{"f16", DTypeF16},
		{"fp16", DTypeF16},
		{"bf16", DTypeBF16},
		{"bfloat16", DTypeBF16},
	}

	for _, tt := range cases {
		got, err := ParseDType(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseDType("int8")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSlabRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.25, -127.5, 1e-3, 42}

	cases := []struct {
		name  string
		dtype DType
		delta float64
	}{
		{"F32", DTypeF32, 0},
		{"F16", DTypeF16, 1e-2},
		{"BF16", DTypeBF16, 1},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s := newSlab(tt.dtype, 3, len(in))
			s.setRow(1, in)

			out := s.row(1, make([]float32, len(in)))
			for i := range in {
				if tt.delta == 0 {
					assert.Equal(t, in[i], out[i])
				} else {
					assert.InDelta(t, in[i], out[i], tt.delta)
				}
			}

			// neighboring rows stay zero
			for _, v := range s.row(0, make([]float32, len(in))) {
				assert.Zero(t, v)
			}
		})
	}
}

func TestSlabRoundTripStable(t *testing.T) {
	// decoding and re-encoding a lossy row is the identity after the first pass
	in := []float32{0.1, 0.2, 0.3, 0.4}

	s := newSlab(DTypeF16, 1, len(in))
	s.setRow(0, in)

	first := s.row(0, make([]float32, len(in)))
	s.setRow(0, first)
	second := s.row(0, make([]float32, len(in)))

	assert.Equal(t, first, second)
}
