package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/jmorganca/sinkcache/envconfig"
	"github.com/jmorganca/sinkcache/model"
	"github.com/jmorganca/sinkcache/server"
)

func NewServeCmd() *cobra.Command {
	cfg := configFromEnv()

	var (
		host  string
		seed  int64
		vocab int
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve generation over HTTP with the reference model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", host)
			if err != nil {
				return err
			}

			return server.Serve(ln, model.New(cfg, vocab, seed), cfg)
		},
	}

	addCacheFlags(cmd, &cfg)
	cmd.Flags().StringVar(&host, "host", envconfig.Host, "Address to listen on")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Reference model seed")
	cmd.Flags().IntVar(&vocab, "vocab", 64, "Reference model vocabulary size")

	return cmd
}
