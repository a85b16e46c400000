package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/insightgraph/internal/extract"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/snapshot"
)

func extractCMD(flags *globalFlags) *cobra.Command {
	var (
		chunkSize int
		out       string
		save      bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file|url>",
		Short: "Extract knowledge graph items from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if chunkSize <= 0 {
				chunkSize = cfg.Extraction.ChunkSize
			}
			ctx, cancel := contextWithTimeout(cmd, cfg.General.DefaultTimeout)
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := extract.LoadDocument(ctx, &http.Client{Timeout: cfg.LLM.Timeout}, args[0])
			if err != nil {
				return err
			}
			items, err := a.extractor.ExtractFromText(ctx, doc.Text, chunkSize)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "extracted %d items from %s\n", len(items), doc.Source)

			if out != "" {
				if err := snapshot.NewFileStore(out).Save(ctx, items); err != nil {
					return err
				}
			} else {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(items); err != nil {
					return err
				}
				_ = enc.Close()
			}

			if save {
				if a.snapshots == nil {
					return errors.New("--save requires storage.redis")
				}
				if err := a.snapshots.Save(ctx, items); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "knowledge snapshot saved")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "maximum characters per chunk (default extraction.chunk_size)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write items to a YAML (or .json) file instead of stdout")
	cmd.Flags().BoolVar(&save, "save", false, "store the items as the knowledge snapshot served by 'serve'")
	return cmd
}
