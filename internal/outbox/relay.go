package outbox

import (
	"context"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay moves committed outbox rows to Kafka. Delivery is at-least-once: a
// crash between publish and commit republishes the batch, consumers dedup
// on event_id.
type Relay struct {
	DB        postgres.Pool
	Publisher Publisher
	BatchSize int
	Interval  time.Duration
	Log       *zap.Logger
}

func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		n, err := r.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			r.Log.Warn("outbox flush failed", zap.Error(err))
		}
		// batch penuh: langsung lanjut tanpa menunggu tick
		if err == nil && n == r.BatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Flush publishes one batch and returns how many rows were marked sent.
// Publishing stops at the first failure; rows already published in the
// batch are still marked.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	sent := 0
	var pubErr error
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		recs, err := FetchPending(ctx, tx, r.BatchSize)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := r.Publisher.Publish(ctx, rec.Topic, []byte(rec.Key), rec.Payload); err != nil {
				metrics.OutboxPublished.WithLabelValues(rec.Topic, "error").Inc()
				pubErr = err
				break
			}
			if err := MarkSent(ctx, tx, rec.ID); err != nil {
				return err
			}
			metrics.OutboxPublished.WithLabelValues(rec.Topic, "ok").Inc()
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, pubErr
}
