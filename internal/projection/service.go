package projection

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderReader is the order read side the projector refreshes from.
type OrderReader interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

// Service keeps the Redis order cache in step with order events. It always
// reloads from the database, so events arriving out of order still leave the
// latest state in the cache.
type Service struct {
	Orders      OrderReader
	Cache       *redisx.Cache
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

// Topics the projector subscribes to.
func Topics() []string {
	return []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}
}

// HandleOrderEvent dipasang sebagai handler consumer.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope; pesan rusak di-skip supaya partisi tidak macet
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Warn("drop undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	orderID, err := s.orderID(env)
	if err != nil {
		s.log().Warn("drop event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if orderID == "" {
		return nil // bukan event order; abaikan
	}

	// 2) dedup via Redis (pakai event_id)
	first, err := redisx.MarkProcessed(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// 3) refresh cache
	if err := s.refresh(ctx, env.EventType, orderID); err != nil {
		if ferr := redisx.ForgetProcessed(ctx, s.Redis, s.ServiceName, env.EventID); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return err
	}
	s.log().Debug("order cache refreshed",
		zap.String("event_type", env.EventType),
		zap.String("order_id", orderID),
	)
	return nil
}

func (s *Service) orderID(env orders.Envelope) (string, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		return p.OrderID, err
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		return p.OrderID, err
	default:
		return "", nil
	}
}

func (s *Service) refresh(ctx context.Context, eventType, orderID string) error {
	key := redisx.OrderKey(orderID)
	if eventType == orders.EventOrderStatusChanged {
		// status lama tidak boleh terbaca lagi walaupun reload gagal
		if err := s.Cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	o, err := s.Orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		// order sudah dihapus (user dihapus); cukup buang cache
		return s.Cache.Delete(ctx, key)
	}
	if err != nil {
		return err
	}
	return s.Cache.Set(ctx, key, o)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
