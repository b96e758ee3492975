// Package sample turns logits into token ids. Sampling strategy is outside
// the cache core; these are the two strategies the CLI and server use.
package sample

import (
	"math"
	"math/rand"
	"slices"
)

type Sampler interface {
	Sample(logits []float32) int32
}

// Greedy picks the argmax token.
func Greedy() Sampler {
	return greedy{}
}

type greedy struct{}

func (greedy) Sample(logits []float32) int32 {
	var best int32
	for i, l := range logits {
		if l > logits[best] {
			best = int32(i)
		}
	}

	return best
}

// New returns a temperature/top-k sampler. A temperature of zero degrades
// to greedy; topK of zero disables the top-k cut.
func New(temperature float32, topK int, seed int64) Sampler {
	if temperature <= 0 {
		return Greedy()
	}

	return &weighted{
		temperature: temperature,
		topK:        topK,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

type weighted struct {
	temperature float32
	topK        int
	rng         *rand.Rand
}

func (s *weighted) Sample(logits []float32) int32 {
	scaled := make([]float64, len(logits))
	for i, l := range logits {
		scaled[i] = float64(l) / float64(s.temperature)
	}

	if s.topK > 0 && s.topK < len(scaled) {
		sorted := slices.Clone(scaled)
		slices.Sort(sorted)
		cutoff := sorted[len(sorted)-s.topK]

		for i := range scaled {
			if scaled[i] < cutoff {
				scaled[i] = math.Inf(-1)
			}
		}
	}

	probs := softmax(scaled)

	r := s.rng.Float64()
	var acc float64
	for i, p := range probs {
		acc += p
		if r < acc {
			return int32(i)
		}
	}

	return int32(len(probs) - 1)
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}

	var sum float64
	probs := make([]float64, len(logits))
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}

	for i := range probs {
		probs[i] /= sum
	}

	return probs
}

// LogProbs converts logits to log-probabilities.
func LogProbs(logits []float32) []float64 {
	scaled := make([]float64, len(logits))
	for i, l := range logits {
		scaled[i] = float64(l)
	}

	probs := softmax(scaled)
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = math.Log(p)
	}

	return out
}
