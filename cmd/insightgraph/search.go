package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func searchCMD(flags *globalFlags) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, cfg.General.DefaultTimeout)
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.knowledge.Search(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of hits (default retrieval.top_k)")
	return cmd
}
