package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func analyzeCMD(flags *globalFlags) *cobra.Command {
	var (
		showPlan bool
		asJSON   bool
	)
	analyze := &cobra.Command{
		Use:   "analyze [question]",
		Short: "Plan and answer a question once",
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

			question := strings.Join(args, " ")
			plan, err := a.planner.CreatePlan(ctx, question)
			if err != nil {
				return fmt.Errorf("failed to create execution plan: %w", err)
			}
			out, err := a.engine.Run(ctx, plan)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"plan":        plan,
					"finalAnswer": out.Text,
					"answered":    out.Answered,
					"results":     out.Results,
				})
			}
			if showPlan {
				for _, t := range plan.Tasks {
					fmt.Fprintf(w, "task %d [%s] %s deps=%v\n", t.ID, t.Tool, firstNonEmpty(t.SubQuery, t.Description), t.Dependencies)
				}
				fmt.Fprintln(w)
			}
			if out.Text == "" {
				fmt.Fprintln(w, "no answer was produced")
				return nil
			}
			fmt.Fprintln(w, out.Text)
			return nil
		},
	}
	analyze.Flags().BoolVar(&showPlan, "show-plan", false, "print the plan before the answer")
	analyze.Flags().BoolVar(&asJSON, "json", false, "print plan, answer and task results as JSON")
	return analyze
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
