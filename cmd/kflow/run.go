package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/kkafka"
	"github.com/birdayz/kflow/kops"
)

var transforms = map[string]func(string) string{
	"identity": func(s string) string { return s },
	"upper":    strings.ToUpper,
	"lower":    strings.ToLower,
	"reverse": func(s string) string {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r)
	},
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigFile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Kafka to Kafka pipeline",
		Long: `Consume text records from kafka.input, apply the configured transform
and produce the results to kafka.output, keeping record keys. kafka.format
selects the value encoding: string, proto or protojson. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.ConfigFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cfg, opts.log)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file")

	return cmd
}

func runPipeline(ctx context.Context, cfg *Config, log logr.Logger) error {
	producer, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer producer.Close()

	if err := kkafka.EnsureTopics(ctx, producer, cfg.Kafka.Partitions, cfg.Kafka.Input, cfg.Kafka.Output); err != nil {
		return err
	}

	src, err := kkafka.NewSource(cfg.Kafka.Group, format(cfg.Kafka.Format).Deserializer,
		kkafka.WithBrokers(cfg.Kafka.Brokers...),
		kkafka.WithTopics(cfg.Kafka.Input),
		kkafka.WithCommitInterval(cfg.Kafka.CommitInterval),
		kkafka.WithLogger(log.WithName("source")),
	)
	if err != nil {
		return err
	}

	app, err := buildPipeline(cfg, src.Operator(), producer).Build(
		kflow.WithName(cfg.Name),
		kflow.WithLog(log),
		kflow.WithShutdownTimeout(cfg.ShutdownTimeout),
		kflow.WithCollaborator(src),
	)
	if err != nil {
		_ = src.Close()
		return err
	}

	log.Info("Running", "input", cfg.Kafka.Input, "output", cfg.Kafka.Output, "transform", cfg.Transform, "format", cfg.Kafka.Format)
	runErr := app.Run(ctx)
	closeErr := app.Close()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}

// buildPipeline wires source -> transform -> sink.
func buildPipeline(cfg *Config, source kflow.Node, producer kkafka.Producer) *kflow.Builder {
	fn := transforms[cfg.Transform]
	ser := format(cfg.Kafka.Format).Serializer

	b := kflow.NewBuilder()
	in := b.AddNode("input", source)
	transform := b.AddNode(cfg.Transform, kops.Map(func(r kkafka.Record[string]) kkafka.Record[string] {
		r.Value = fn(r.Value)
		return r
	}))
	out := b.AddNode("output", kkafka.Sink(producer, cfg.Kafka.Output,
		func(r kkafka.Record[string]) ([]byte, error) { return ser(r.Value) },
		kkafka.WithKey(func(r kkafka.Record[string]) []byte { return r.Key }),
	))
	b.Connect(in, transform)
	b.Connect(transform, out)
	return b
}
