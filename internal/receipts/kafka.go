package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces outbox entries keyed by subject so every receipt
// about one subject lands on the same partition, in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entries []OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.Subject),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "kind", Value: []byte(e.Kind)},
				{Key: "receipt_id", Value: []byte(e.ID.String())},
			},
		}
	}
	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce receipts: %w", err)
	}
	return nil
}

// Outbox is the read side of the PostgresOutbox used by the worker.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher ships outbox entries downstream.
type Publisher interface {
	Publish(ctx context.Context, entries []OutboxEntry) error
}

// OutboxWorker polls the outbox and publishes pending receipts.
type OutboxWorker struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type WorkerOption func(*OutboxWorker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *OutboxWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *OutboxWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *OutboxWorker) {
		w.logger = logger
	}
}

func NewOutboxWorker(outbox Outbox, publisher Publisher, opts ...WorkerOption) *OutboxWorker {
	w := &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. A failed publish leaves the batch
// unpublished for the next tick.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "receipt outbox publish failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch and returns the number of entries published.
func (w *OutboxWorker) Drain(ctx context.Context) (int, error) {
	entries, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := w.publisher.Publish(ctx, entries); err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := w.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, err
	}
	return len(entries), nil
}
