package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/benchmark"
	"github.com/jmorganca/sinkcache/envconfig"
	"github.com/jmorganca/sinkcache/format"
	"github.com/jmorganca/sinkcache/model"
	"github.com/jmorganca/sinkcache/recorder"
	"github.com/jmorganca/sinkcache/runner"
	"github.com/jmorganca/sinkcache/sample"
)

func NewRunCmd() *cobra.Command {
	cfg := configFromEnv()

	var (
		promptLen   int
		maxTokens   int
		temperature float32
		topK        int
		seed        int64
		vocab       int
		tracePath   string
		sequences   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate with the reference model over a synthetic prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := model.New(cfg, vocab, seed)

			if sequences > 1 {
				return runBatch(cmd, m, cfg, sequences, promptLen, maxTokens, vocab, seed)
			}

			prompt := benchmark.SyntheticPrompts(1, promptLen, vocab, seed)[0]

			var opts []runner.SequenceOption
			if tracePath != "" {
				f, err := os.Create(tracePath)
				if err != nil {
					return err
				}
				defer f.Close()

				opts = append(opts, runner.WithRecorder(recorder.New(f)))
			}

			seq, err := runner.NewSequence(cfg, opts...)
			if err != nil {
				return err
			}
			defer seq.Release()

			start := time.Now()
			out, err := runner.Generate(cmd.Context(), m, seq, sample.New(temperature, topK, seed), prompt, maxTokens)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			for _, token := range out {
				fmt.Printf("%d ", token)
			}
			fmt.Println()

			total := len(prompt) + len(out)
			fmt.Printf("\n%s tokens in %s (%.1f tok/s), cache %s, state %s\n",
				format.HumanNumber(uint64(total)),
				format.HumanDuration(elapsed),
				float64(total)/elapsed.Seconds(),
				format.HumanBytes(int64(seq.Cache().MemoryBytes(cfg.Encoding == api.EncodingRotary))),
				seq.State(),
			)

			return nil
		},
	}

	addCacheFlags(cmd, &cfg)
	cmd.Flags().IntVar(&promptLen, "prompt-length", 64, "Synthetic prompt length in tokens")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 256, "Tokens to generate")
	cmd.Flags().Float32Var(&temperature, "temperature", 0.5, "Sampling temperature, 0 for greedy")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Top-k sampling cut, 0 to disable")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Model and sampler seed")
	cmd.Flags().IntVar(&vocab, "vocab", 64, "Reference model vocabulary size")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Write a CBOR cache trace to this file")
	cmd.Flags().IntVar(&sequences, "sequences", 1, "Generate this many independent sequences, SINKCACHE_NUM_PARALLEL at a time")

	return cmd
}

// runBatch generates several independent sequences through the batch driver,
// bounded by the configured parallelism.
func runBatch(cmd *cobra.Command, m runner.Model, cfg api.Config, sequences, promptLen, maxTokens, vocab int, seed int64) error {
	prompts := benchmark.SyntheticPrompts(sequences, promptLen, vocab, seed)

	batch := runner.NewBatch(envconfig.NumParallel)
	jobs := make([]*runner.Job, len(prompts))
	for i, prompt := range prompts {
		seq, err := runner.NewSequence(cfg)
		if err != nil {
			return err
		}

		jobs[i] = &runner.Job{Seq: seq, Prompt: prompt, MaxTokens: maxTokens}
		batch.Add(jobs[i])
	}

	start := time.Now()
	if err := batch.Run(cmd.Context(), m, sample.Greedy()); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := 0
	for i, job := range jobs {
		total += len(job.Prompt) + len(job.Output)
		fmt.Printf("seq %d: %d prompt + %d generated\n", i, len(job.Prompt), len(job.Output))
	}

	fmt.Printf("\n%s tokens across %d sequences in %s (%.1f tok/s)\n",
		format.HumanNumber(uint64(total)), sequences,
		format.HumanDuration(elapsed), float64(total)/elapsed.Seconds())

	return nil
}
