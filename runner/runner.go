package runner

import (
	"context"
	"errors"

	"github.com/jmorganca/sinkcache/kvcache"
	"github.com/jmorganca/sinkcache/sample"
)

// Model is the external forward pass: given the retained cache entries and
// mask for one token, it returns next-token logits plus the token's KV rows,
// one per layer. Weight loading and the attention arithmetic live behind
// this interface, outside the cache core.
type Model interface {
	Forward(ctx context.Context, token int32, inputs *kvcache.AttentionInputs) (logits []float32, keys, values [][]float32, err error)
}

// Decode runs one token through the step pipeline: build attention inputs
// (evicting and remapping if needed), call the model, append the new KV.
func (s *Sequence) Decode(ctx context.Context, m Model, token int32) ([]float32, error) {
	inputs, err := s.AttentionInputs()
	if err != nil {
		return nil, err
	}

	logits, keys, values, err := m.Forward(ctx, token, inputs)
	if err != nil {
		return nil, err
	}

	if err := s.AppendTokenKV(keys, values); err != nil {
		return nil, err
	}

	return logits, nil
}

// Generate feeds the prompt and then samples up to maxTokens continuation
// tokens. The prompt may be many multiples of the cache capacity; physical
// storage stays bounded throughout.
func Generate(ctx context.Context, m Model, s *Sequence, sampler sample.Sampler, prompt []int32, maxTokens int) ([]int32, error) {
	if len(prompt) == 0 {
		return nil, errors.New("empty prompt")
	}

	var logits []float32
	for _, token := range prompt {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		if logits, err = s.Decode(ctx, m, token); err != nil {
			return nil, err
		}
	}

	out := make([]int32, 0, maxTokens)
	for len(out) < maxTokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		token := sampler.Sample(logits)
		out = append(out, token)

		var err error
		if logits, err = s.Decode(ctx, m, token); err != nil {
			return nil, err
		}
	}

	return out, nil
}
