package kvcache

import (
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType selects the storage type for cached keys and values. Values are
// converted on write and decoded on read; all arithmetic happens in float32.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
)

func ParseDType(s string) (DType, error) {
	switch s {
	case "", "f32", "fp32":
		return DTypeF32, nil
	case "f16", "fp16":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	}

	return 0, fmt.Errorf("%w: unknown kv type %q", ErrInvalidConfig, s)
}

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	}

	return "unknown"
}

// ElemSize is the storage size of one element in bytes.
func (t DType) ElemSize() uint64 {
	if t == DTypeF32 {
		return 4
	}

	return 2
}

// slab is a fixed rows x cols arena packed in the configured dtype. Rows are
// written and read whole; the backing array never grows or moves.
type slab struct {
	dtype DType
	rows  int
	cols  int

	f32 []float32
	u16 []uint16
}

func newSlab(dtype DType, rows, cols int) *slab {
	s := &slab{dtype: dtype, rows: rows, cols: cols}

	if dtype == DTypeF32 {
		s.f32 = make([]float32, rows*cols)
	} else {
		s.u16 = make([]uint16, rows*cols)
	}

	return s
}

func (s *slab) setRow(row int, v []float32) {
	if len(v) != s.cols {
		panic(fmt.Sprintf("slab: row width %d, want %d", len(v), s.cols))
	}

	off := row * s.cols
	switch s.dtype {
	case DTypeF32:
		copy(s.f32[off:off+s.cols], v)
	case DTypeF16:
		for i, x := range v {
			s.u16[off+i] = float16.Fromfloat32(x).Bits()
		}
	case DTypeBF16:
		for i, x := range v {
			s.u16[off+i] = uint16(bfloat16.FromFloat32(x))
		}
	}
}

// row decodes one row into dst, which must be cols long.
func (s *slab) row(row int, dst []float32) []float32 {
	off := row * s.cols
	switch s.dtype {
	case DTypeF32:
		copy(dst, s.f32[off:off+s.cols])
	case DTypeF16:
		for i := range dst {
			dst[i] = float16.Frombits(s.u16[off+i]).Float32()
		}
	case DTypeBF16:
		for i := range dst {
			dst[i] = bfloat16.ToFloat32(bfloat16.BF16(s.u16[off+i]))
		}
	}

	return dst
}
