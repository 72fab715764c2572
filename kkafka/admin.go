package kkafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/multierr"
)

// EnsureTopics creates topics that do not exist yet, with the broker's
// default replication factor. Existing topics are left alone, whatever their
// partition count.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32, topics ...string) error {
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, partitions, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	var errs error
	for _, resp := range resps {
		if resp.Err == nil || errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err))
	}
	return errs
}
