// Package rebuild connects the indexer's rebuild state machine to the outside
// world: rebuild events go to Kafka for the content producer, and pending
// rebuild requests are kept in Redis so they survive restarts.
package rebuild

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/resilience"
)

// Publisher writes one event to a topic. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier publishes rebuild events keyed by index name, retrying transient
// broker failures.
type Notifier struct {
	publisher Publisher
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

func NewNotifier(publisher Publisher, retry resilience.RetryConfig) *Notifier {
	return &Notifier{
		publisher: publisher,
		retry:     retry,
		logger:    logger.WithComponent("rebuild-notifier"),
	}
}

func (n *Notifier) NotifyRebuild(ctx context.Context, event indexer.RebuildEvent) error {
	err := resilience.Retry(ctx, "publish rebuild event", n.retry, func() error {
		return n.publisher.Publish(ctx, kafka.Event{Key: event.Index, Value: event})
	})
	if err != nil {
		return err
	}
	n.logger.Info("rebuild event published",
		"index", event.Index,
		"version", event.Version,
		"reason", event.Reason,
	)
	return nil
}
