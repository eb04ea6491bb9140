package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// RabbitAuditQueue реализует domain.AuditQueue поверх AMQP. Очередь durable,
// сообщения persistent: запись аудита не должна теряться на рестарте брокера,
// хотя сбой публикации основную мутацию всё равно не блокирует.
type RabbitAuditQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitAuditQueue подключается к брокеру и объявляет очередь.
func NewRabbitAuditQueue(amqpURL, queue string) (*RabbitAuditQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitAuditQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует запись аудита.
func (q *RabbitAuditQueue) Enqueue(ctx context.Context, entry domain.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID,
		Timestamp:    entry.CreatedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish entry: %w", err)
	}
	return nil
}

// Pop блокирующе читает одну запись из очереди.
func (q *RabbitAuditQueue) Pop(ctx context.Context) (domain.AuditEntry, error) {
	deliveries, err := q.consumeChan()
	if err != nil {
		return domain.AuditEntry{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.AuditEntry{}, ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return domain.AuditEntry{}, errors.New("канал доставки закрыт")
			}
			var entry domain.AuditEntry
			if err := json.Unmarshal(msg.Body, &entry); err != nil {
				// Битое сообщение повторять бессмысленно.
				_ = msg.Nack(false, false)
				return domain.AuditEntry{}, fmt.Errorf("decode entry: %w", err)
			}
			if err := msg.Ack(false); err != nil {
				return domain.AuditEntry{}, fmt.Errorf("ack entry: %w", err)
			}
			return entry, nil
		}
	}
}

func (q *RabbitAuditQueue) consumeChan() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitAuditQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
