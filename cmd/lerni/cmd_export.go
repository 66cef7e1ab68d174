package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/torenunez/lerni/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole knowledge base as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := export.Build(cmd.Context(), a.store, a.now)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := export.Write(w, doc); err != nil {
				return err
			}

			if output != "" && output != "-" {
				fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render(fmt.Sprintf("Exported %d concept(s) and %d question(s) to %s.", len(doc.Concepts), len(doc.Questions), output)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}
