// Package benchmark compares cache policies on generation quality. The
// measure follows the upstream attention-sinks evaluation: generate a
// continuation under each policy and compare average cumulative
// log-probability over a fixed batch of prompts.
package benchmark

import (
	"context"
	"math/rand"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/model"
	"github.com/jmorganca/sinkcache/runner"
	"github.com/jmorganca/sinkcache/sample"
)

// Result is one prompt's outcome under both policies.
type Result struct {
	Tokens       int
	SinkLogProb  float64
	TruncLogProb float64
}

type Summary struct {
	Results  []Result
	AvgSink  float64
	AvgTrunc float64
}

// SinkWins reports whether the sink policy was no worse on average.
func (s *Summary) SinkWins() bool {
	return s.AvgSink >= s.AvgTrunc
}

// Compare generates maxTokens greedily per prompt under the configured sink
// cache and under naive last-C truncation (sink size zero, same capacity),
// accumulating each continuation's log-probability.
func Compare(ctx context.Context, m runner.Model, cfg api.Config, prompts [][]int32, maxTokens int) (*Summary, error) {
	truncCfg := cfg
	truncCfg.SinkSize = 0
	truncCfg.WindowSize = cfg.Capacity()

	summary := &Summary{}
	for _, prompt := range prompts {
		sinkLP, n, err := cumLogProb(ctx, m, cfg, prompt, maxTokens)
		if err != nil {
			return nil, err
		}

		truncLP, _, err := cumLogProb(ctx, m, truncCfg, prompt, maxTokens)
		if err != nil {
			return nil, err
		}

		summary.Results = append(summary.Results, Result{
			Tokens:       n,
			SinkLogProb:  sinkLP,
			TruncLogProb: truncLP,
		})

		summary.AvgSink += sinkLP
		summary.AvgTrunc += truncLP
	}

	if len(summary.Results) > 0 {
		summary.AvgSink /= float64(len(summary.Results))
		summary.AvgTrunc /= float64(len(summary.Results))
	}

	return summary, nil
}

// cumLogProb feeds the prompt, then greedily extends by maxTokens, summing
// the log-probability of each chosen token.
func cumLogProb(ctx context.Context, m runner.Model, cfg api.Config, prompt []int32, maxTokens int) (float64, int, error) {
	seq, err := runner.NewSequence(cfg)
	if err != nil {
		return 0, 0, err
	}
	defer seq.Release()

	var logits []float32
	for _, token := range prompt {
		if logits, err = seq.Decode(ctx, m, token); err != nil {
			return 0, 0, err
		}
	}

	greedy := sample.Greedy()

	var cum float64
	for i := 0; i < maxTokens; i++ {
		token := greedy.Sample(logits)
		cum += sample.LogProbs(logits)[token]

		if logits, err = seq.Decode(ctx, m, token); err != nil {
			return 0, 0, err
		}
	}

	return cum, maxTokens, nil
}

// SyntheticPrompts builds prompts longer than the nominal context: BOS
// followed by uniformly random tokens.
func SyntheticPrompts(count, length, vocab int, seed int64) [][]int32 {
	rng := rand.New(rand.NewSource(seed))

	prompts := make([][]int32, count)
	for i := range prompts {
		p := make([]int32, length)
		p[0] = model.BOS
		for j := 1; j < length; j++ {
			p[j] = 2 + int32(rng.Intn(vocab-2))
		}

		prompts[i] = p
	}

	return prompts
}
