// Package kvcache implements a fixed-capacity per-sequence KV cache split
// into an immutable sink region and a sliding window. The sink holds the
// first SinkSize tokens of the sequence forever; the window holds the most
// recent WindowSize tokens. Everything in between is evicted, which keeps
// physical storage and attention positions bounded no matter how many tokens
// a sequence generates.
package kvcache

import "errors"

var (
	// ErrInvalidConfig indicates a cache configuration that can never start a
	// sequence: non-positive window, sink not strictly smaller than capacity,
	// or a capacity that exceeds the configured memory budget.
	ErrInvalidConfig = errors.New("invalid sink cache configuration")

	// ErrCapacityViolation indicates an append at full capacity without a
	// preceding eviction. This is a programming error in the caller, not a
	// recoverable condition: the owning sequence must be aborted.
	ErrCapacityViolation = errors.New("kv cache append at full capacity without eviction")

	// ErrPositionOverflow indicates a remapped attention position at or past
	// capacity, which would feed the positional encoding an out-of-range
	// value. Fatal: the owning sequence must be aborted.
	ErrPositionOverflow = errors.New("attention position exceeds cache capacity")

	// ErrReleased indicates use of a cache handle after Release.
	ErrReleased = errors.New("kv cache already released")
)

// Cache is the per-sequence handle offered to the generation loop.
//
// Within a sequence, calls are strictly sequential: the state after step N is
// a precondition for step N+1. Across sequences no synchronization is needed
// because every sequence exclusively owns its cache.
type Cache interface {
	// AppendTokenKV stores one token's key and value per layer, evicting the
	// oldest window entry first when at capacity.
	AppendTokenKV(keys, values [][]float32) error

	// AttentionInputs returns the retained entries and the mask or bias for
	// the next forward pass.
	AttentionInputs() (*AttentionInputs, error)

	// Release frees cache resources. The handle cannot be reused.
	Release()
}

// AttentionInputs is the cache's contribution to one forward pass: the
// retained entries in recency order plus the mask or distance bias the
// attending model should apply.
type AttentionInputs struct {
	// Keys and Values are indexed [layer][ord][dim] where ord is recency
	// order: sink first, then window oldest to newest. For rotary encodings
	// the keys are already rotated at their attention positions.
	Keys   [][][]float32
	Values [][][]float32

	// Positions holds the attention position of each ordinal. By
	// construction Positions[i] == i and every value is below capacity.
	Positions []int32

	// QueryPos is the attention position the next token will occupy.
	QueryPos int32

	Mask *Mask
}

// Mask is the attention mask for a single query step over the retained
// entries. For rotary and unencoded caches only Causal is set; for ALiBi,
// Bias carries the per-head distance penalties.
type Mask struct {
	// Causal holds 0 for visible entries and -Inf for masked ones, one value
	// per retained ordinal.
	Causal []float32

	// Bias is indexed [head][ord]: -slope(head) * (query - key distance).
	// Nil unless the cache uses ALiBi.
	Bias [][]float32
}
