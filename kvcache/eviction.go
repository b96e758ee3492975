package kvcache

// EvictionPolicy selects the slot that leaves the cache when an append would
// exceed capacity. Sink slots are never candidates. Pluggable in principle;
// WindowFIFO is the only policy in use.
type EvictionPolicy interface {
	// Select returns the slot to evict, or ok=false if nothing is evictable.
	Select(c *SinkCache) (slot int, ok bool)
}

// WindowFIFO evicts the single oldest window entry, which guarantees the
// window always holds exactly the most recent non-sink tokens.
type WindowFIFO struct{}

func (WindowFIFO) Select(c *SinkCache) (int, bool) {
	return c.OldestWindowSlot()
}
