package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

var (
	// Set via SINKCACHE_DEBUG in the environment
	Debug bool
	// Set via SINKCACHE_HOST in the environment
	Host string
	// Set via SINKCACHE_NUM_PARALLEL in the environment
	NumParallel int
	// Set via SINKCACHE_SINK_SIZE in the environment
	SinkSize int
	// Set via SINKCACHE_WINDOW_SIZE in the environment
	WindowSize int
	// Set via SINKCACHE_KV_TYPE in the environment
	KVType string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SINKCACHE_DEBUG":        {"SINKCACHE_DEBUG", Debug, "Show additional debug information (e.g. SINKCACHE_DEBUG=1)"},
		"SINKCACHE_HOST":         {"SINKCACHE_HOST", Host, "IP address for the server (default 127.0.0.1:11434)"},
		"SINKCACHE_NUM_PARALLEL": {"SINKCACHE_NUM_PARALLEL", NumParallel, "Maximum number of sequences decoded in parallel (default 4)"},
		"SINKCACHE_SINK_SIZE":    {"SINKCACHE_SINK_SIZE", SinkSize, "Default number of permanently retained leading tokens (default 4)"},
		"SINKCACHE_WINDOW_SIZE":  {"SINKCACHE_WINDOW_SIZE", WindowSize, "Default size of the sliding recent region (default 252)"},
		"SINKCACHE_KV_TYPE":      {"SINKCACHE_KV_TYPE", KVType, "Storage type for cached keys and values: f32, f16 or bf16 (default f16)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}

	return vals
}

var defaults = struct {
	numParallel int
	sinkSize    int
	windowSize  int
	kvType      string
	host        string
}{
	numParallel: 4,
	sinkSize:    4,
	windowSize:  252,
	kvType:      "f16",
	host:        "127.0.0.1:11434",
}

// LoadConfig reads the SINKCACHE_* environment variables, falling back to
// defaults for anything unset or unparseable.
func LoadConfig() {
	if debug := clean("SINKCACHE_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Host = defaults.host
	if host := clean("SINKCACHE_HOST"); host != "" {
		Host = host
	}

	NumParallel = positiveInt("SINKCACHE_NUM_PARALLEL", defaults.numParallel)
	WindowSize = positiveInt("SINKCACHE_WINDOW_SIZE", defaults.windowSize)

	SinkSize = defaults.sinkSize
	if raw := clean("SINKCACHE_SINK_SIZE"); raw != "" {
		// zero is meaningful: it disables sink retention entirely
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			SinkSize = v
		} else {
			slog.Error("invalid setting, ignoring", "SINKCACHE_SINK_SIZE", raw)
		}
	}

	KVType = defaults.kvType
	if kv := clean("SINKCACHE_KV_TYPE"); kv != "" {
		KVType = kv
	}
}

func positiveInt(name string, fallback int) int {
	raw := clean(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Error("invalid setting, ignoring", name, raw)
		return fallback
	}

	return v
}

func clean(key string) string {
	return os.Getenv(key)
}

func init() {
	LoadConfig()
}
