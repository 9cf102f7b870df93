package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

const consumePollInterval = time.Second

// AMQPAlertQueue реализует очередь уведомлений поверх RabbitMQ.
type AMQPAlertQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPAlertQueue подключается к брокеру и объявляет durable-очередь.
func NewAMQPAlertQueue(amqpURL, queue string) (*AMQPAlertQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPAlertQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *AMQPAlertQueue) Enqueue(ctx context.Context, job domain.AlertJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *AMQPAlertQueue) Pop(ctx context.Context) (domain.AlertJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AlertJob{}, err
		}
		msg, ok, err := q.ch.Get(q.queue, true)
		if err != nil {
			return domain.AlertJob{}, fmt.Errorf("get message: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return domain.AlertJob{}, ctx.Err()
			case <-time.After(consumePollInterval):
			}
			continue
		}
		var job domain.AlertJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			return domain.AlertJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Close закрывает канал и подключение.
func (q *AMQPAlertQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}
