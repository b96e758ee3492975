package runner

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/kvcache"
	"github.com/jmorganca/sinkcache/recorder"
)

// State is a sequence's lifecycle stage. Filling lasts while the logical
// length is below capacity; the transition to Steady is irreversible.
// Released is terminal, entered on completion or abort.
type State int

const (
	StateFilling State = iota
	StateSteady
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateSteady:
		return "steady"
	case StateReleased:
		return "released"
	}

	return "unknown"
}

// Sequence drives one generation stream's cache: per decode step it runs
// append, eviction, remap and mask construction exactly once, in that order,
// and hands the result to the external model forward. It exclusively owns
// its cache; independent sequences need no locking.
type Sequence struct {
	id      string
	cfg     api.Config
	cache   *kvcache.SinkCache
	policy  kvcache.EvictionPolicy
	variant kvcache.Variant
	state   State
	rec     *recorder.Recorder
}

type SequenceOption func(*Sequence)

// WithRecorder traces cache activity to rec.
func WithRecorder(rec *recorder.Recorder) SequenceOption {
	return func(s *Sequence) {
		s.rec = rec
	}
}

// NewSequence validates cfg and allocates the sequence's cache. A sequence
// that fails validation never starts.
func NewSequence(cfg api.Config, opts ...SequenceOption) (*Sequence, error) {
	variant, err := kvcache.NewVariant(cfg)
	if err != nil {
		return nil, err
	}

	cache, err := kvcache.New(cfg)
	if err != nil {
		return nil, err
	}

	s := &Sequence{
		id:      uuid.NewString(),
		cfg:     cfg,
		cache:   cache,
		policy:  kvcache.WindowFIFO{},
		variant: variant,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Sequence) ID() string         { return s.id }
func (s *Sequence) State() State       { return s.state }
func (s *Sequence) Config() api.Config { return s.cfg }

// Cache exposes the underlying store for inspection.
func (s *Sequence) Cache() *kvcache.SinkCache { return s.cache }

// AppendTokenKV stores one generated token's KV rows, evicting the oldest
// window entry first if the cache is full. Structural failures abort the
// sequence rather than let it keep generating from a corrupted cache.
func (s *Sequence) AppendTokenKV(keys, values [][]float32) error {
	if s.state == StateReleased {
		return kvcache.ErrReleased
	}

	if err := s.evictIfFull(); err != nil {
		return err
	}

	if err := s.cache.Append(keys, values); err != nil {
		return s.abort(err)
	}

	if err := s.variant.Remap(s.cache); err != nil {
		return s.abort(err)
	}

	if s.state == StateFilling && s.cache.LogicalLen() >= s.cache.Capacity() {
		s.state = StateSteady
		slog.Debug("sequence entered steady state", "id", s.id, "capacity", s.cache.Capacity())
		s.rec.Record(recorder.Event{Seq: s.id, Kind: recorder.EventState, State: s.state.String()})
	}

	s.rec.Record(recorder.Event{
		Seq:  s.id,
		Kind: recorder.EventAppend,
		Step: s.cache.LogicalLen() - 1,
	})

	return nil
}

// AttentionInputs prepares the next forward pass: evict if full, remap,
// build the mask, and return the retained entries in recency order.
func (s *Sequence) AttentionInputs() (*kvcache.AttentionInputs, error) {
	if s.state == StateReleased {
		return nil, kvcache.ErrReleased
	}

	if err := s.evictIfFull(); err != nil {
		return nil, err
	}

	// remap is idempotent, so running it again without an eviction is a no-op
	if err := s.variant.Remap(s.cache); err != nil {
		return nil, s.abort(err)
	}

	n := s.cache.Len()
	queryPos := int32(n)

	mask, err := s.variant.BuildMask(s.cache, queryPos)
	if err != nil {
		return nil, s.abort(err)
	}

	inputs := &kvcache.AttentionInputs{
		Keys:      make([][][]float32, s.cfg.NumLayers),
		Values:    make([][][]float32, s.cfg.NumLayers),
		Positions: make([]int32, n),
		QueryPos:  queryPos,
		Mask:      mask,
	}

	for l := 0; l < s.cfg.NumLayers; l++ {
		inputs.Keys[l], inputs.Values[l] = s.cache.Entries(l)
	}

	for i := range inputs.Positions {
		inputs.Positions[i] = int32(i)
	}

	return inputs, nil
}

func (s *Sequence) evictIfFull() error {
	if !s.cache.Full() {
		return nil
	}

	slot, ok := s.policy.Select(s.cache)
	if !ok {
		return s.abort(fmt.Errorf("%w: cache full with no evictable window slot", kvcache.ErrCapacityViolation))
	}

	if err := s.cache.Evict(slot); err != nil {
		return s.abort(err)
	}

	if err := s.variant.Remap(s.cache); err != nil {
		return s.abort(err)
	}

	s.rec.Record(recorder.Event{
		Seq:       s.id,
		Kind:      recorder.EventEvict,
		Slot:      slot,
		Step:      s.cache.LogicalLen(),
		Positions: s.cache.LogicalPositions(),
	})

	return nil
}

// Release frees the cache immediately. Exclusive ownership makes this
// atomic; no other sequence can observe partial state.
func (s *Sequence) Release() {
	if s.state == StateReleased {
		return
	}

	s.cache.Release()
	s.state = StateReleased
	s.rec.Record(recorder.Event{Seq: s.id, Kind: recorder.EventRelease})
}

func (s *Sequence) abort(err error) error {
	slog.Error("aborting sequence", "id", s.id, "error", err)
	s.Release()

	return err
}
