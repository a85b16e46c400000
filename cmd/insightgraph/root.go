package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/insightgraph/config"
)

type globalFlags struct {
	configPath string
}

func rootCMD() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "insightgraph",
		Short:         "Plan, retrieve and synthesize answers over a knowledge graph and a sales warehouse",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default searches ./config and .)")

	root.AddCommand(
		serveCMD(flags),
		migrateCMD(flags),
		analyzeCMD(flags),
		extractCMD(flags),
		searchCMD(flags),
		tokenCMD(flags),
	)
	return root
}

func (g *globalFlags) load() (*config.Config, error) {
	return config.LoadConfig(g.configPath)
}
