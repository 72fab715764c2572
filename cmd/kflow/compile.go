package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/birdayz/kflow/internal/graphfile"
	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kdiag"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <graph.yaml>",
		Short: "Partition and stratify a graph file",
		Long: `Compile a YAML graph description and print the resulting subgraphs,
their strata and the handoffs between them. Diagnostics go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := compileFile(cmd.ErrOrStderr(), rootOpts, args[0])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), prog.Describe())
			return err
		},
	}
}

// compileFile loads and compiles a graph file, rendering every diagnostic
// to w.
func compileFile(w io.Writer, rootOpts *RootOptions, path string) (*kcompile.Program, error) {
	f, err := graphfile.Load(path)
	if err != nil {
		return nil, err
	}

	g, diags := f.Graph()
	if diags.HasErrors() {
		if err := diags.Render(w); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %d error(s)", path, len(diags.Errors()))
	}

	prog, err := kcompile.Compile(g, kcompile.WithLogger(rootOpts.log))
	if err != nil {
		ds, ok := kdiag.FromError(err)
		if !ok {
			return nil, err
		}
		if err := ds.Render(w); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %d error(s)", path, len(ds.Errors()))
	}

	if err := prog.Diagnostics().Render(w); err != nil {
		return nil, fmt.Errorf("write diagnostics: %w", err)
	}
	return prog, nil
}
