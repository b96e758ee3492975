package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 256, cfg.Capacity())
	assert.Equal(t, EncodingRotary, cfg.Encoding)
}

func TestFromMap(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.FromMap(map[string]any{
		"sink_size":           8,
		"window_size":         "120",
		"positional_encoding": "alibi",
		"kv_type":             "bf16",
	})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.SinkSize)
	assert.Equal(t, 120, cfg.WindowSize)
	assert.Equal(t, EncodingALiBi, cfg.Encoding)
	assert.Equal(t, "bf16", cfg.KVType)

	// untouched fields keep their defaults
	assert.Equal(t, 64, cfg.HeadDim)
}

func TestFromMapFloatToInt(t *testing.T) {
	// JSON numbers arrive as float64
	cfg := DefaultConfig()
	require.NoError(t, cfg.FromMap(map[string]any{"sink_size": float64(2)}))
	assert.Equal(t, 2, cfg.SinkSize)
}

func TestFromMapUnknownKey(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.FromMap(map[string]any{"sink_sise": 8}))
}
