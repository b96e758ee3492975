package runner

import (
	"context"

	"github.com/emirpasic/gods/lists/arraylist"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jmorganca/sinkcache/sample"
)

// Job is one sequence's generation work. Output is populated by Run.
type Job struct {
	Seq       *Sequence
	Prompt    []int32
	MaxTokens int
	Output    []int32
}

// Batch steps independent sequences data-parallel. Every sequence
// exclusively owns its cache, so jobs share nothing and need no locking;
// the semaphore only bounds how many decode loops run at once. Admission
// and retirement policy beyond this FIFO is the caller's concern.
type Batch struct {
	parallel int64
	pending  *arraylist.List
}

func NewBatch(parallel int) *Batch {
	if parallel < 1 {
		parallel = 1
	}

	return &Batch{
		parallel: int64(parallel),
		pending:  arraylist.New(),
	}
}

func (b *Batch) Add(job *Job) {
	b.pending.Add(job)
}

func (b *Batch) Len() int {
	return b.pending.Size()
}

// Run drains the queue in admission order. Each sequence is released when
// its job finishes or the batch is cancelled.
func (b *Batch) Run(ctx context.Context, m Model, sampler sample.Sampler) error {
	sem := semaphore.NewWeighted(b.parallel)
	g, ctx := errgroup.WithContext(ctx)

	var admitErr error

	it := b.pending.Iterator()
	for it.Next() {
		job := it.Value().(*Job)

		if err := sem.Acquire(ctx, 1); err != nil {
			admitErr = err
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			defer job.Seq.Release()

			out, err := Generate(ctx, m, job.Seq, sampler, job.Prompt, job.MaxTokens)
			if err != nil {
				return err
			}

			job.Output = out

			return nil
		})
	}

	err := g.Wait()

	// release anything that was never admitted
	it = b.pending.Iterator()
	for it.Next() {
		it.Value().(*Job).Seq.Release()
	}
	b.pending.Clear()

	if err != nil {
		return err
	}

	return admitErr
}
