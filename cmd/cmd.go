package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/envconfig"
	"github.com/jmorganca/sinkcache/logutil"
	"github.com/jmorganca/sinkcache/version"
)

func NewCLI() *cobra.Command {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logutil.NewLogger(os.Stderr, level))

	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "sinkcache",
		Short:         "Bounded KV cache playground for unbounded generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(
		NewRunCmd(),
		NewBenchCmd(),
		NewServeCmd(),
		NewEnvCmd(),
	)

	return rootCmd
}

// configFromEnv seeds a cache configuration from the SINKCACHE_* defaults.
func configFromEnv() api.Config {
	cfg := api.DefaultConfig()
	cfg.SinkSize = envconfig.SinkSize
	cfg.WindowSize = envconfig.WindowSize
	cfg.KVType = envconfig.KVType

	return cfg
}

func addCacheFlags(cmd *cobra.Command, cfg *api.Config) {
	cmd.Flags().IntVar(&cfg.SinkSize, "sink-size", cfg.SinkSize, "Leading tokens permanently retained")
	cmd.Flags().IntVar(&cfg.WindowSize, "window-size", cfg.WindowSize, "Size of the sliding recent region")
	cmd.Flags().StringVar(&cfg.Encoding, "encoding", cfg.Encoding, "Positional encoding: rotary, alibi or none")
	cmd.Flags().StringVar(&cfg.KVType, "kv-type", cfg.KVType, "KV storage type: f32, f16 or bf16")
}
