package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jmorganca/sinkcache/envconfig"
)

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Run: func(cmd *cobra.Command, args []string) {
			vars := envconfig.AsMap()

			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				v := vars[name]
				fmt.Printf("%-26s %-10v %s\n", v.Name, v.Value, v.Description)
			}
		},
	}
}
