package kvcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/sinkcache/api"
)

func testConfig(sink, window int) api.Config {
	return api.Config{
		SinkSize:   sink,
		WindowSize: window,
		Encoding:   api.EncodingNone,
		NumLayers:  2,
		NumHeads:   4,
		HeadDim:    4,
		KVType:     "f32",
	}
}

func rows(layers, dim int, fill float32) [][]float32 {
	out := make([][]float32, layers)
	for l := range out {
		out[l] = make([]float32, dim)
		for i := range out[l] {
			out[l][i] = fill
		}
	}

	return out
}

func appendToken(t *testing.T, c *SinkCache, fill float32) {
	t.Helper()

	if c.Full() {
		slot, ok := WindowFIFO{}.Select(c)
		require.True(t, ok)
		require.NoError(t, c.Evict(slot))
	}

	require.NoError(t, c.Append(rows(2, 4, fill), rows(2, 4, -fill)))
}

func TestInvariants(t *testing.T) {
	cfg := testConfig(4, 16)
	c, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		appendToken(t, c, float32(i))

		assert.LessOrEqual(t, c.Len(), c.Capacity())
		assert.Equal(t, min(4, i+1), c.SinkLen())
		assert.Equal(t, i+1, c.LogicalLen())

		window := c.Len() - c.SinkLen()
		assert.LessOrEqual(t, window, 16)
	}

	// window holds exactly the 16 most recent non-sink tokens
	positions := c.LogicalPositions()
	require.Len(t, positions, 20)
	assert.Equal(t, []int32{0, 1, 2, 3}, positions[:4])
	for i, pos := range positions[4:] {
		assert.Equal(t, int32(24+i), pos)
	}
}

func TestAppendAtCapacity(t *testing.T) {
	c, err := New(testConfig(1, 2))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Append(rows(2, 4, float32(i)), rows(2, 4, 0)))
	}

	err = c.Append(rows(2, 4, 9), rows(2, 4, 0))
	require.ErrorIs(t, err, ErrCapacityViolation)

	// eviction of the oldest window slot frees exactly one append
	slot, ok := c.OldestWindowSlot()
	require.True(t, ok)
	require.NoError(t, c.Evict(slot))
	require.NoError(t, c.Append(rows(2, 4, 9), rows(2, 4, 0)))
	require.ErrorIs(t, c.Append(rows(2, 4, 10), rows(2, 4, 0)), ErrCapacityViolation)
}

func TestEvictOnlyOldestWindowSlot(t *testing.T) {
	c, err := New(testConfig(2, 3))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		appendToken(t, c, float32(i))
	}

	// sink slots are never evictable
	require.Error(t, c.Evict(0))
	require.Error(t, c.Evict(1))

	oldest, ok := c.OldestWindowSlot()
	require.True(t, ok)
	require.Error(t, c.Evict(oldest+1))
	require.NoError(t, c.Evict(oldest))
}

func TestEntriesRecencyOrder(t *testing.T) {
	c, err := New(testConfig(2, 3))
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		appendToken(t, c, float32(i))
	}

	// sink 0,1 then window 6,7,8
	keys, values := c.Entries(0)
	require.Len(t, keys, 5)

	wantFills := []float32{0, 1, 6, 7, 8}
	for ord, want := range wantFills {
		assert.Equal(t, want, keys[ord][0], "ord %d", ord)
		assert.Equal(t, -want, values[ord][0], "ord %d", ord)
	}

	assert.Equal(t, []int32{0, 1, 6, 7, 8}, c.LogicalPositions())
}

func TestZeroSink(t *testing.T) {
	c, err := New(testConfig(0, 4))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		appendToken(t, c, float32(i))
	}

	assert.Equal(t, 0, c.SinkLen())
	assert.Equal(t, []int32{6, 7, 8, 9}, c.LogicalPositions())
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  api.Config
	}{
		{"ZeroWindow", testConfig(4, 0)},
		{"NegativeSink", testConfig(-1, 4)},
		{"NoLayers", func() api.Config { c := testConfig(1, 2); c.NumLayers = 0; return c }()},
		{"BadKVType", func() api.Config { c := testConfig(1, 2); c.KVType = "q4"; return c }()},
		{"OddRotaryDim", func() api.Config {
			c := testConfig(1, 2)
			c.Encoding = api.EncodingRotary
			c.HeadDim = 5
			return c
		}()},
		{"OverBudget", func() api.Config { c := testConfig(4, 1020); c.MaxMemory = 1024; return c }()},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestMemoryBytes(t *testing.T) {
	cfg := testConfig(4, 16)
	c, err := New(cfg)
	require.NoError(t, err)

	// 2 slabs * 2 layers * 20 slots * 4 dims * 4 bytes
	assert.Equal(t, uint64(2*2*20*4*4), c.MemoryBytes(false))
	assert.Equal(t, uint64(3*2*20*4*4), c.MemoryBytes(true))
}

func TestRelease(t *testing.T) {
	c, err := New(testConfig(1, 2))
	require.NoError(t, err)

	require.NoError(t, c.Append(rows(2, 4, 1), rows(2, 4, 1)))
	c.Release()

	assert.True(t, c.Released())
	assert.Zero(t, c.Len())
	require.ErrorIs(t, c.Append(rows(2, 4, 2), rows(2, 4, 2)), ErrReleased)
	require.ErrorIs(t, c.Evict(1), ErrReleased)
}
