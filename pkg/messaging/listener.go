package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DeclareBindAndConsume binds an exclusive, server named queue to the topic
// exchange so every node receives every message.
func DeclareBindAndConsume(ch *amqp.Channel, prefix string, topic ChangeTopic) (<-chan amqp.Delivery, error) {
	name := getName(prefix, topic)
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}
	err = ch.QueueBind(q.Name, name, name, false, nil)
	if err != nil {
		return nil, err
	}
	return ch.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

// ListenToTopic consumes until ctx is done or the channel closes. Failed
// deliveries are logged and rejected without requeue.
func ListenToTopic(ctx context.Context, ch *amqp.Channel, prefix string, topic ChangeTopic, logger *zap.Logger, handle func(amqp.Delivery) error) error {
	msgs, err := DeclareBindAndConsume(ch, prefix, topic)
	if err != nil {
		return err
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					logger.Warn("topic consumer closed", zap.String("topic", string(topic)))
					return
				}
				if err := handle(d); err != nil {
					logger.Error("error processing message", zap.String("topic", string(topic)), zap.Error(err))
					d.Nack(false, false)
					continue
				}
				d.Ack(false)
			}
		}
	}()
	return nil
}
