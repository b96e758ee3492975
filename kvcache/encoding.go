package kvcache

import (
	"fmt"
	"math"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/rope"
)

// Variant is the encoding-specific half of the cache: what happens to stored
// keys when the layout changes, and what the attending model receives as
// mask or bias. The variant is selected once at sequence setup; there is no
// runtime type inspection on the hot path.
type Variant interface {
	// Remap reconciles stored keys and attention positions with the current
	// physical layout. It must be idempotent: calling it twice without an
	// intervening append or eviction yields an identical cache.
	Remap(c *SinkCache) error

	// BuildMask builds the mask or bias seen by a query at queryPos over the
	// retained entries.
	BuildMask(c *SinkCache, queryPos int32) (*Mask, error)
}

func NewVariant(cfg api.Config) (Variant, error) {
	switch cfg.Encoding {
	case api.EncodingRotary:
		base := cfg.RopeBase
		if base == 0 {
			base = 10000
		}

		return &rotaryVariant{base: base}, nil
	case api.EncodingALiBi:
		if cfg.NumHeads < 1 {
			return nil, fmt.Errorf("%w: alibi needs num_heads >= 1, got %d", ErrInvalidConfig, cfg.NumHeads)
		}

		return &alibiVariant{slopes: Slopes(cfg.NumHeads)}, nil
	case api.EncodingNone:
		return noneVariant{}, nil
	}

	return nil, fmt.Errorf("%w: unknown positional encoding %q", ErrInvalidConfig, cfg.Encoding)
}

// rotaryVariant stores keys rotated at their attention position. After an
// eviction shifts window entries down, every surviving key whose attention
// position changed is recomputed from its pristine row, which is bit-for-bit
// the same as rotating it fresh.
type rotaryVariant struct {
	base float64
}

func (v *rotaryVariant) Remap(c *SinkCache) error {
	if c.released {
		return ErrReleased
	}

	scratch := make([]float32, c.headDim)

	for ord := 0; ord < c.count; ord++ {
		want := int32(ord)
		if want >= int32(c.capacity) {
			return fmt.Errorf("%w: position %d, capacity %d", ErrPositionOverflow, want, c.capacity)
		}

		slot := c.slotOf(ord)
		if c.keyPos[slot] == want {
			continue
		}

		for l := 0; l < c.layers; l++ {
			c.rawKeys[l].row(slot, scratch)
			rope.Apply(scratch, want, v.base)
			c.keys[l].setRow(slot, scratch)
		}

		c.keyPos[slot] = want
	}

	return nil
}

func (v *rotaryVariant) BuildMask(c *SinkCache, queryPos int32) (*Mask, error) {
	return buildCausal(c, queryPos)
}

// alibiVariant leaves stored keys untouched: ALiBi penalties are relative
// distances evaluated per query step, so remapping only affects the bias.
type alibiVariant struct {
	slopes []float64
}

func (v *alibiVariant) Remap(c *SinkCache) error {
	if c.released {
		return ErrReleased
	}

	if c.count > c.capacity {
		return fmt.Errorf("%w: %d entries, capacity %d", ErrPositionOverflow, c.count, c.capacity)
	}

	return nil
}

func (v *alibiVariant) BuildMask(c *SinkCache, queryPos int32) (*Mask, error) {
	mask, err := buildCausal(c, queryPos)
	if err != nil {
		return nil, err
	}

	mask.Bias = make([][]float32, len(v.slopes))
	for h, slope := range v.slopes {
		row := make([]float32, c.count)
		for ord := range row {
			row[ord] = float32(-slope * float64(queryPos-int32(ord)))
		}

		mask.Bias[h] = row
	}

	return mask, nil
}

type noneVariant struct{}

func (noneVariant) Remap(c *SinkCache) error {
	if c.released {
		return ErrReleased
	}

	return nil
}

func (noneVariant) BuildMask(c *SinkCache, queryPos int32) (*Mask, error) {
	return buildCausal(c, queryPos)
}

func buildCausal(c *SinkCache, queryPos int32) (*Mask, error) {
	if queryPos >= int32(c.capacity) || queryPos < 0 {
		return nil, fmt.Errorf("%w: query position %d, capacity %d", ErrPositionOverflow, queryPos, c.capacity)
	}

	mask := &Mask{Causal: make([]float32, c.count)}
	for ord := range mask.Causal {
		if int32(ord) > queryPos {
			mask.Causal[ord] = float32(math.Inf(-1))
		}
	}

	return mask, nil
}

// Slopes returns the per-head ALiBi slopes: a geometric sequence starting at
// 2^(-8/n) for n heads, interpolated for non-power-of-two head counts the
// way the paper does.
func Slopes(heads int) []float64 {
	pow2 := 1
	for pow2*2 <= heads {
		pow2 *= 2
	}

	slopes := geometricSlopes(pow2)
	if heads > pow2 {
		extra := geometricSlopes(2 * pow2)
		for i := 0; len(slopes) < heads; i += 2 {
			slopes = append(slopes, extra[i])
		}
	}

	return slopes
}

func geometricSlopes(n int) []float64 {
	start := math.Pow(2, -8.0/float64(n))

	slopes := make([]float64, n)
	ratio := start
	for i := range slopes {
		slopes[i] = ratio
		ratio *= start
	}

	return slopes
}
