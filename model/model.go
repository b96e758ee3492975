// Package model provides a small deterministic reference model implementing
// the runner's forward contract. It is not a trained network: embeddings are
// seeded at random and a single attention head mixes cached values. What it
// does reproduce is the attention-sink phenomenon: every key shares a common
// positive direction and the BOS key carries sinkGain times the norm of any
// other, so BOS soaks up softmax mass whenever it is still in the cache.
// Evict it and attention goes diffuse, the mixed value shrinks toward noise
// and the logits flatten, which is exactly the quality collapse cache
// policies are compared on.
package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/kvcache"
	"github.com/jmorganca/sinkcache/rope"
)

// BOS is the conventional start token.
const BOS int32 = 1

const (
	sinkGain   = 8
	sharedDir  = 2
	logitScale = 8
)

type TextModel struct {
	cfg   api.Config
	vocab int

	// keyEmbed rows share a common direction so every query-key score is
	// positive; valEmbed rows are independent unit vectors. BOS is scaled by
	// sinkGain in both tables.
	keyEmbed [][]float32
	valEmbed [][]float32

	base float64
}

func New(cfg api.Config, vocab int, seed int64) *TextModel {
	rng := rand.New(rand.NewSource(seed))

	keyEmbed := make([][]float32, vocab)
	valEmbed := make([][]float32, vocab)

	shared := make([]float64, cfg.HeadDim)
	for i := range shared {
		shared[i] = 1 / math.Sqrt(float64(cfg.HeadDim))
	}

	for v := range keyEmbed {
		gain := 1.0
		if int32(v) == BOS {
			gain = sinkGain
		}

		k := make([]float64, cfg.HeadDim)
		for i := range k {
			k[i] = rng.NormFloat64()/math.Sqrt(float64(cfg.HeadDim)) + sharedDir*shared[i]
		}

		keyEmbed[v] = normalize(k, gain)

		val := make([]float64, cfg.HeadDim)
		for i := range val {
			val[i] = rng.NormFloat64()
		}

		valEmbed[v] = normalize(val, gain)
	}

	base := cfg.RopeBase
	if base == 0 {
		base = 10000
	}

	return &TextModel{cfg: cfg, vocab: vocab, keyEmbed: keyEmbed, valEmbed: valEmbed, base: base}
}

func normalize(x []float64, gain float64) []float32 {
	var norm float64
	for _, v := range x {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v / norm * gain)
	}

	return out
}

func (m *TextModel) Vocab() int { return m.vocab }

// Forward computes one decode step: attention over the retained cache
// entries for the given token, next-token logits, and the token's KV rows
// (raw; the cache applies any rotation itself).
func (m *TextModel) Forward(ctx context.Context, token int32, inputs *kvcache.AttentionInputs) ([]float32, [][]float32, [][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	if token < 0 || int(token) >= m.vocab {
		return nil, nil, nil, fmt.Errorf("token %d out of vocabulary %d", token, m.vocab)
	}

	q := append([]float32(nil), m.keyEmbed[token]...)
	if m.cfg.Encoding == api.EncodingRotary {
		rope.Apply(q, inputs.QueryPos, m.base)
	}

	ctxv, _ := m.attend(q, inputs)
	if ctxv == nil {
		// first token attends only to itself
		ctxv = m.valEmbed[token]
	}

	logits := make([]float32, m.vocab)
	for v := range logits {
		logits[v] = dot(ctxv, m.valEmbed[v]) * logitScale
	}

	keys := make([][]float32, m.cfg.NumLayers)
	values := make([][]float32, m.cfg.NumLayers)
	for l := range keys {
		keys[l] = append([]float32(nil), m.keyEmbed[token]...)
		values[l] = append([]float32(nil), m.valEmbed[token]...)
	}

	return logits, keys, values, nil
}

// attend mixes layer-0 values by masked softmax over key scores, returning
// the mixture and the attention weights per retained ordinal.
func (m *TextModel) attend(q []float32, inputs *kvcache.AttentionInputs) ([]float32, []float64) {
	n := len(inputs.Positions)
	if n == 0 {
		return nil, nil
	}

	keys := inputs.Keys[0]
	values := inputs.Values[0]

	scale := 1 / float32(math.Sqrt(float64(len(q))))

	scores := make([]float64, n)
	for i := range scores {
		s := dot(q, keys[i]) * scale
		s += inputs.Mask.Causal[i]
		if inputs.Mask.Bias != nil {
			s += inputs.Mask.Bias[0][i]
		}

		scores[i] = float64(s)
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}

	var sum float64
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		sum += scores[i]
	}

	ctxv := make([]float32, len(q))
	for i := range scores {
		scores[i] /= sum
		for j, v := range values[i] {
			ctxv[j] += float32(scores[i]) * v
		}
	}

	return ctxv, scores
}

func dot(a, b []float32) float32 {
	var acc float32
	for i := range a {
		acc += a[i] * b[i]
	}

	return acc
}
