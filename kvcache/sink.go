package kvcache

import (
	"fmt"
	"log/slog"

	"github.com/jmorganca/sinkcache/api"
)

// SinkCache is the physical store behind a sequence's cache handle: one
// fixed arena of Capacity slots per layer. Slots 0..SinkSize-1 hold the sink
// and are written once. The remaining slots hold the window as a ring; the
// head index advances on eviction so no data moves besides the newly
// appended row.
type SinkCache struct {
	sinkSize   int
	windowSize int
	capacity   int
	layers     int
	headDim    int
	dtype      DType

	// keys holds the encoded keys the model attends to. For rotary caches
	// these rows are rotated at their current attention position and rawKeys
	// retains the pristine rows that re-rotation recomputes from. rawKeys is
	// nil for other encodings.
	keys    []*slab
	values  []*slab
	rawKeys []*slab

	// positions is the logical (true) position per slot; keyPos is the
	// attention position the stored key row was rotated at, -1 if unrotated.
	positions []int32
	keyPos    []int32

	head    int // ring index of the oldest window slot
	wcount  int // window slots in use
	count   int // physical slots in use
	logical int // tokens appended over the sequence lifetime

	released bool
}

// New validates cfg and allocates the per-layer arenas. A sequence that
// fails here never starts.
func New(cfg api.Config) (*SinkCache, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("%w: sink size %d must be strictly less than capacity %d",
			ErrInvalidConfig, cfg.SinkSize, cfg.Capacity())
	}

	if cfg.SinkSize < 0 {
		return nil, fmt.Errorf("%w: negative sink size %d", ErrInvalidConfig, cfg.SinkSize)
	}

	if cfg.NumLayers < 1 || cfg.HeadDim < 1 {
		return nil, fmt.Errorf("%w: num_layers %d, head_dim %d", ErrInvalidConfig, cfg.NumLayers, cfg.HeadDim)
	}

	if cfg.Encoding == api.EncodingRotary && cfg.HeadDim%2 != 0 {
		return nil, fmt.Errorf("%w: rotary encoding needs an even head_dim, got %d", ErrInvalidConfig, cfg.HeadDim)
	}

	dtype, err := ParseDType(cfg.KVType)
	if err != nil {
		return nil, err
	}

	c := &SinkCache{
		sinkSize:   cfg.SinkSize,
		windowSize: cfg.WindowSize,
		capacity:   cfg.Capacity(),
		layers:     cfg.NumLayers,
		headDim:    cfg.HeadDim,
		dtype:      dtype,
		positions:  make([]int32, cfg.Capacity()),
		keyPos:     make([]int32, cfg.Capacity()),
	}

	if cfg.MaxMemory > 0 && c.MemoryBytes(cfg.Encoding == api.EncodingRotary) > cfg.MaxMemory {
		return nil, fmt.Errorf("%w: %d slots need %d bytes, budget is %d",
			ErrInvalidConfig, c.capacity, c.MemoryBytes(cfg.Encoding == api.EncodingRotary), cfg.MaxMemory)
	}

	c.keys = make([]*slab, c.layers)
	c.values = make([]*slab, c.layers)
	for l := range c.keys {
		c.keys[l] = newSlab(dtype, c.capacity, c.headDim)
		c.values[l] = newSlab(dtype, c.capacity, c.headDim)
	}

	if cfg.Encoding == api.EncodingRotary {
		c.rawKeys = make([]*slab, c.layers)
		for l := range c.rawKeys {
			c.rawKeys[l] = newSlab(dtype, c.capacity, c.headDim)
		}
	}

	slog.Debug("created kv cache", "sink", c.sinkSize, "window", c.windowSize,
		"layers", c.layers, "head_dim", c.headDim, "dtype", dtype.String())

	return c, nil
}

// MemoryBytes is the fixed arena footprint. It does not depend on how many
// tokens the sequence has generated.
func (c *SinkCache) MemoryBytes(rotary bool) uint64 {
	slabs := uint64(2)
	if rotary {
		slabs = 3
	}

	return slabs * uint64(c.layers) * uint64(c.capacity) * uint64(c.headDim) * c.dtype.ElemSize()
}

func (c *SinkCache) Capacity() int  { return c.capacity }
func (c *SinkCache) SinkSize() int  { return c.sinkSize }
func (c *SinkCache) WindowSize() int { return c.windowSize }

// Len is the number of physical slots in use; never exceeds Capacity.
func (c *SinkCache) Len() int { return c.count }

// LogicalLen is the true number of tokens appended over the sequence's
// lifetime. It grows without bound while Len stays at most Capacity.
func (c *SinkCache) LogicalLen() int { return c.logical }

// SinkLen is the number of established sink slots: min(SinkSize, LogicalLen).
func (c *SinkCache) SinkLen() int {
	return min(c.sinkSize, c.logical)
}

func (c *SinkCache) Full() bool { return c.count == c.capacity }

func (c *SinkCache) Released() bool { return c.released }

// slotOf maps a recency ordinal to its physical slot: sink ordinals map to
// themselves, window ordinals follow the ring from head.
func (c *SinkCache) slotOf(ord int) int {
	if ord < c.SinkLen() {
		return ord
	}

	return c.sinkSize + (c.head+ord-c.SinkLen())%c.windowSize
}

// Append stores one token's KV rows raw. The caller must have evicted first
// if the cache was full; appending at capacity is a structural bug.
func (c *SinkCache) Append(keys, values [][]float32) error {
	if c.released {
		return ErrReleased
	}

	if len(keys) != c.layers || len(values) != c.layers {
		return fmt.Errorf("append with %d key and %d value layers, cache has %d", len(keys), len(values), c.layers)
	}

	if c.Full() {
		return fmt.Errorf("%w (capacity %d)", ErrCapacityViolation, c.capacity)
	}

	var slot int
	if c.logical < c.sinkSize {
		slot = c.logical
	} else {
		slot = c.sinkSize + (c.head+c.wcount)%c.windowSize
		c.wcount++
	}

	for l := range keys {
		c.keys[l].setRow(slot, keys[l])
		c.values[l].setRow(slot, values[l])
		if c.rawKeys != nil {
			c.rawKeys[l].setRow(slot, keys[l])
		}
	}

	c.positions[slot] = int32(c.logical)
	c.keyPos[slot] = -1
	c.count++
	c.logical++

	return nil
}

// OldestWindowSlot is the eviction candidate: the physical slot of the least
// recent window entry. ok is false while the window is empty.
func (c *SinkCache) OldestWindowSlot() (int, bool) {
	if c.wcount == 0 {
		return 0, false
	}

	return c.sinkSize + c.head, true
}

// Evict frees a single window slot. Only the oldest window slot may be
// evicted; sink slots never qualify.
func (c *SinkCache) Evict(slot int) error {
	if c.released {
		return ErrReleased
	}

	oldest, ok := c.OldestWindowSlot()
	if !ok || slot != oldest {
		return fmt.Errorf("evicting slot %d, only the oldest window slot %d is evictable", slot, oldest)
	}

	slog.Debug("evicting window slot", "slot", slot, "position", c.positions[slot])

	c.head = (c.head + 1) % c.windowSize
	c.wcount--
	c.count--

	return nil
}

// Entries decodes one layer's retained rows in recency order. For rotary
// caches the keys carry their current rotation.
func (c *SinkCache) Entries(layer int) (keys, values [][]float32) {
	keys = make([][]float32, c.count)
	values = make([][]float32, c.count)

	for ord := range keys {
		slot := c.slotOf(ord)
		keys[ord] = c.keys[layer].row(slot, make([]float32, c.headDim))
		values[ord] = c.values[layer].row(slot, make([]float32, c.headDim))
	}

	return keys, values
}

// LogicalPositions returns the retained entries' true sequence positions in
// recency order.
func (c *SinkCache) LogicalPositions() []int32 {
	out := make([]int32, c.count)
	for ord := range out {
		out[ord] = c.positions[c.slotOf(ord)]
	}

	return out
}

// Release frees the arenas. Exclusive ownership makes this atomic: no other
// sequence can observe a partially released cache.
func (c *SinkCache) Release() {
	c.released = true
	c.keys = nil
	c.values = nil
	c.rawKeys = nil
	c.count = 0
	c.wcount = 0
}
