package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/slask-archive/pkg/common"
	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Bus fans visibility changes out to the other nodes. Changes are batched
// and published from a background queue.
type Bus struct {
	conn   *amqp.Connection
	prefix string
	origin string
	logger *zap.Logger
	queue  *common.QueueHandler[types.VisibilityChange]
}

func Connect(cfg RabbitConfig, logger *zap.Logger) (*Bus, error) {
	conn, err := amqp.Dial(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err = DefineTopic(ch, cfg.Prefix, VisibilityChanged); err != nil {
		conn.Close()
		return nil, fmt.Errorf("define topic: %w", err)
	}
	b := &Bus{
		conn:   conn,
		prefix: cfg.Prefix,
		origin: uuid.NewString(),
		logger: logger,
	}
	b.queue = common.NewQueueHandler(b.publish, 100, time.Second)
	return b, nil
}

// OnVisibilityChange queues a change for publishing; it matches the
// visibility listener signature.
func (b *Bus) OnVisibilityChange(_ context.Context, change types.VisibilityChange) {
	b.queue.Add(change)
}

func (b *Bus) publish(changes []types.VisibilityChange) {
	batch := VisibilityChangeBatch{Origin: b.origin, Changes: changes}
	if err := SendChange(b.conn, b.prefix, VisibilityChanged, batch); err != nil {
		b.logger.Error("failed to publish visibility changes", zap.Int("changes", len(changes)), zap.Error(err))
		return
	}
	b.logger.Debug("published visibility changes", zap.Int("changes", len(changes)))
}

// ListenVisibilityChanges calls fn for every batch published by other nodes.
func (b *Bus) ListenVisibilityChanges(ctx context.Context, fn func(ctx context.Context, batch VisibilityChangeBatch) error) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	return ListenToTopic(ctx, ch, b.prefix, VisibilityChanged, b.logger, func(d amqp.Delivery) error {
		return handleVisibilityBatch(ctx, d.Body, b.origin, fn)
	})
}

func handleVisibilityBatch(ctx context.Context, body []byte, origin string, fn func(ctx context.Context, batch VisibilityChangeBatch) error) error {
	var batch VisibilityChangeBatch
	if err := jsoncompat.Unmarshal(body, &batch); err != nil {
		return fmt.Errorf("decode visibility batch: %w", err)
	}
	if batch.Origin == origin {
		return nil
	}
	return fn(ctx, batch)
}

// Close flushes queued changes before closing the connection.
func (b *Bus) Close() error {
	b.queue.Close()
	return b.conn.Close()
}
