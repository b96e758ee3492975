package envconfig

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDefaults(t *testing.T) {
	t.Setenv("SINKCACHE_DEBUG", "")
	t.Setenv("SINKCACHE_HOST", "")
	t.Setenv("SINKCACHE_NUM_PARALLEL", "")
	t.Setenv("SINKCACHE_SINK_SIZE", "")
	t.Setenv("SINKCACHE_WINDOW_SIZE", "")
	t.Setenv("SINKCACHE_KV_TYPE", "")

	LoadConfig()

	assert.Equal(t, Host, "127.0.0.1:11434")
	assert.Equal(t, NumParallel, 4)
	assert.Equal(t, SinkSize, 4)
	assert.Equal(t, WindowSize, 252)
	assert.Equal(t, KVType, "f16")
}

func TestOverrides(t *testing.T) {
	t.Setenv("SINKCACHE_DEBUG", "1")
	t.Setenv("SINKCACHE_HOST", "0.0.0.0:8080")
	t.Setenv("SINKCACHE_NUM_PARALLEL", "8")
	t.Setenv("SINKCACHE_SINK_SIZE", "0")
	t.Setenv("SINKCACHE_WINDOW_SIZE", "1020")
	t.Setenv("SINKCACHE_KV_TYPE", "bf16")

	LoadConfig()

	assert.Equal(t, Debug, true)
	assert.Equal(t, Host, "0.0.0.0:8080")
	assert.Equal(t, NumParallel, 8)
	assert.Equal(t, SinkSize, 0)
	assert.Equal(t, WindowSize, 1020)
	assert.Equal(t, KVType, "bf16")
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SINKCACHE_NUM_PARALLEL", "zero")
	t.Setenv("SINKCACHE_SINK_SIZE", "-3")
	t.Setenv("SINKCACHE_WINDOW_SIZE", "0")

	LoadConfig()

	assert.Equal(t, NumParallel, 4)
	assert.Equal(t, SinkSize, 4)
	assert.Equal(t, WindowSize, 252)
}

func TestAsMapCoversEverything(t *testing.T) {
	vars := AsMap()
	for name, v := range vars {
		assert.Equal(t, name, v.Name)
		assert.Assert(t, v.Description != "")
	}

	assert.Equal(t, len(Values()), len(vars))
}
