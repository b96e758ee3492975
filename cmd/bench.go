package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmorganca/sinkcache/benchmark"
	"github.com/jmorganca/sinkcache/model"
)

func NewBenchCmd() *cobra.Command {
	cfg := configFromEnv()

	var (
		numPrompts int
		promptLen  int
		maxTokens  int
		seed       int64
		vocab      int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare sink retention against naive truncation on cumulative log-probability",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := model.New(cfg, vocab, seed)
			prompts := benchmark.SyntheticPrompts(numPrompts, promptLen, vocab, seed)

			summary, err := benchmark.Compare(cmd.Context(), m, cfg, prompts, maxTokens)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"PROMPT", "TOKENS", "SINK LOGPROB", "TRUNC LOGPROB", "DELTA"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")

			for i, r := range summary.Results {
				table.Append([]string{
					fmt.Sprintf("%d", i),
					fmt.Sprintf("%d", r.Tokens),
					fmt.Sprintf("%.2f", r.SinkLogProb),
					fmt.Sprintf("%.2f", r.TruncLogProb),
					fmt.Sprintf("%+.2f", r.SinkLogProb-r.TruncLogProb),
				})
			}

			table.Render()

			fmt.Printf("\navg sink %.2f, avg truncated %.2f\n", summary.AvgSink, summary.AvgTrunc)
			if summary.SinkWins() {
				fmt.Println("sink retention is no worse than truncation")
			} else {
				fmt.Println("sink retention lost to truncation")
			}

			return nil
		},
	}

	addCacheFlags(cmd, &cfg)
	cmd.Flags().IntVar(&numPrompts, "prompts", 4, "Number of synthetic prompts")
	cmd.Flags().IntVar(&promptLen, "prompt-length", 0, "Prompt length, 0 for twice the cache capacity")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 128, "Continuation length per prompt")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Model and prompt seed")
	cmd.Flags().IntVar(&vocab, "vocab", 64, "Reference model vocabulary size")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if promptLen == 0 {
			promptLen = 2 * cfg.Capacity()
		}
	}

	return cmd
}
