package main

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/birdayz/kflow/pkg/log"
)

// RootOptions holds the flags shared by all commands.
type RootOptions struct {
	LogLevel string

	log logr.Logger
}

// NewRootCommand creates the kflow command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kflow",
		Short: "Compile and run dataflow graphs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := log.NewWithWriter(cmd.ErrOrStderr(), opts.LogLevel)
			if err != nil {
				return err
			}
			opts.log = l
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewDotCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}
