package api

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Positional encoding families. The choice is fixed per sequence at creation
// and selects how the cache handles stored keys on eviction.
const (
	EncodingRotary = "rotary"
	EncodingALiBi  = "alibi"
	EncodingNone   = "none"
)

// Config fixes the shape of a sequence's KV cache at creation time. It is
// immutable once a sequence has been started from it.
type Config struct {
	// SinkSize is the number of leading tokens permanently retained. May be
	// zero, which degrades to plain sliding-window truncation.
	SinkSize int `json:"sink_size"`

	// WindowSize is the size of the sliding recent region.
	WindowSize int `json:"window_size"`

	// Encoding selects the positional encoding family: rotary, alibi or none.
	Encoding string `json:"positional_encoding"`

	// NumLayers, NumHeads and HeadDim describe the attending model. The cache
	// keeps one arena per layer.
	NumLayers int `json:"num_layers"`
	NumHeads  int `json:"num_heads"`
	HeadDim   int `json:"head_dim"`

	// RopeBase is the rotary frequency base. Ignored for non-rotary encodings.
	RopeBase float64 `json:"rope_base"`

	// KVType is the storage type for cached keys and values: f32, f16 or bf16.
	KVType string `json:"kv_type"`

	// MaxMemory, when non-zero, caps the per-sequence cache footprint in
	// bytes. Sequence creation fails if sink_size + window_size does not fit.
	MaxMemory uint64 `json:"max_memory,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		SinkSize:   4,
		WindowSize: 252,
		Encoding:   EncodingRotary,
		NumLayers:  2,
		NumHeads:   8,
		HeadDim:    64,
		RopeBase:   10000,
		KVType:     "f16",
	}
}

// Capacity is the fixed number of physical cache slots per layer.
func (c Config) Capacity() int {
	return c.SinkSize + c.WindowSize
}

// FromMap overlays recognized options from a loosely typed map, as received
// in API requests. Unknown keys are rejected.
func (c *Config) FromMap(opts map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	return nil
}

type GenerateRequest struct {
	// Prompt is the tokenized prompt. Tokenization is the caller's concern.
	Prompt []int32 `json:"prompt"`

	// MaxTokens is the number of tokens to generate beyond the prompt.
	MaxTokens int `json:"max_tokens"`

	Temperature float32 `json:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	Seed        int64   `json:"seed,omitempty"`

	// Options overlays cache configuration, see Config.FromMap.
	Options map[string]any `json:"options,omitempty"`
}

type GenerateResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Token     int32     `json:"token"`
	Done      bool      `json:"done"`

	EvalCount    int           `json:"eval_count,omitempty"`
	EvalDuration time.Duration `json:"eval_duration,omitempty"`
}
