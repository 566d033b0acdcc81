// Package consumer reads content-change events from Kafka and feeds them to
// the registered indexes.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
)

// Content event operations.
const (
	OpUpsert          = "upsert"
	OpDelete          = "delete"
	OpRebuildComplete = "rebuild_complete"
)

// ContentEvent is one message of the content-changes topic. Index restricts
// the event to a single index, as used while re-feeding a rebuild.
type ContentEvent struct {
	Op       string               `json:"op"`
	InputID  uint32               `json:"inputId"`
	Document *extensions.Document `json:"document,omitempty"`
	Index    string               `json:"index,omitempty"`
}

// Target is an index fed by the consumer.
type Target struct {
	Name    string
	Updater indexer.Updater[extensions.Document]
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   logger.WithComponent("index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler applying content events to
// targets through reg. Malformed events are logged and skipped. A failed
// commit is not retried since the index has already requested its rebuild.
func HandleMessage(reg *indexer.Registry, targets []Target) kafka.MessageHandler {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ContentEvent](value)
		if err != nil {
			log.Error("failed to decode content event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := Apply(ctx, reg, targets, event); err != nil {
			if apperrors.IsCancellation(err) || ctx.Err() != nil {
				return err
			}
			if errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrIndexNotFound) {
				log.Error("content event rejected", "op", event.Op, "input_id", event.InputID, "error", err)
				return nil
			}
			return err
		}
		return nil
	}
}

// Apply performs one content event.
func Apply(ctx context.Context, reg *indexer.Registry, targets []Target, event ContentEvent) error {
	log := logger.FromContext(ctx).With("component", "index-consumer")
	if event.Op == OpRebuildComplete {
		return reg.CompleteRebuild(ctx, event.Index)
	}

	id := index.InputID(event.InputID)
	if id == 0 {
		return fmt.Errorf("%w: input id must be positive", apperrors.ErrInvalidInput)
	}
	var doc *extensions.Document
	switch event.Op {
	case OpUpsert:
		if event.Document == nil {
			return fmt.Errorf("%w: upsert of input %d without document", apperrors.ErrInvalidInput, id)
		}
		doc = event.Document
	case OpDelete:
	default:
		return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, event.Op)
	}

	jobs := make([]indexer.Job, 0, len(targets))
	for _, t := range targets {
		if event.Index != "" && event.Index != t.Name {
			continue
		}
		jobs = append(jobs, indexer.UpdateJob(t.Updater, id, doc))
	}
	if len(jobs) == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, event.Index)
	}
	ok, err := reg.Apply(ctx, jobs...)
	if err != nil {
		return fmt.Errorf("indexing input %d: %w", id, err)
	}
	if !ok {
		log.Warn("commit failed, index rebuild pending", "input_id", id, "op", event.Op)
		return nil
	}
	log.Debug("content event applied", "input_id", id, "op", event.Op, "indexes", len(jobs))
	return nil
}
