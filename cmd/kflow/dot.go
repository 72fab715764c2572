package main

import (
	"github.com/spf13/cobra"

	"github.com/birdayz/kflow/kcompile"
)

// DotOptions holds flags for the dot command.
type DotOptions struct {
	*RootOptions
	Mermaid bool
}

// NewDotCommand creates the dot command.
func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dot <graph.yaml>",
		Short: "Render the partitioned graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := compileFile(cmd.ErrOrStderr(), opts.RootOptions, args[0])
			if err != nil {
				return err
			}
			if opts.Mermaid {
				return kcompile.WriteMermaid(cmd.OutOrStdout(), prog)
			}
			return kcompile.WriteDOT(cmd.OutOrStdout(), prog)
		},
	}

	cmd.Flags().BoolVar(&opts.Mermaid, "mermaid", false, "render a Mermaid flowchart instead of Graphviz DOT")

	return cmd
}
