package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
// Возвращённая ошибка означает неуспех обработки: сообщение будет
// доставлено повторно, а по исчерпании попыток уйдёт в DLQ.
type Handler func(ctx context.Context, msg *Delivery) error

// DeadLetterHandler вызывается, когда сообщение исчерпало попытки
// и маршрутизируется в DLQ (до ack). Оркестратор использует его,
// чтобы перевести связанный workflow в FAILED.
type DeadLetterHandler func(ctx context.Context, msg *Delivery, lastErr error)

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенный конверт.
	Message Message

	// Attempts — номер текущей доставки (начиная с 1).
	Attempts int

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer потребляет сообщения из очереди.
//
// Дисциплина повторов: при ошибке обработчика сообщение
// переиздаётся в свой exchange с увеличенным счётчиком x-attempts и
// подтверждается; доставка сверх AttemptCap уходит в DLQ с конвертом
// {original_topic, offset, first_seen_at, last_error, attempts}.
type Consumer struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger

	queue      Queue
	exchange   Exchange
	routingKey RoutingKey

	handler      Handler
	onDeadLetter DeadLetterHandler

	prefetch   int
	attemptCap int

	// stopCh останавливает приём новых сообщений, не отменяя контекст
	// выполняющихся обработчиков (graceful drain).
	stopCh   chan struct{}
	stopOnce sync.Once
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — очередь потребления.
	Queue Queue

	// Exchange / RoutingKey — куда переиздавать сообщение при retry.
	Exchange   Exchange
	RoutingKey RoutingKey

	// Handler — обработчик сообщений.
	Handler Handler

	// OnDeadLetter — уведомление о маршрутизации в DLQ (опционально).
	OnDeadLetter DeadLetterHandler

	// Prefetch — количество необработанных сообщений на потребителя.
	Prefetch int

	// AttemptCap — доставки до DLQ (default 5).
	AttemptCap int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, publisher *Publisher, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	attemptCap := cfg.AttemptCap
	if attemptCap <= 0 {
		attemptCap = 5
	}

	return &Consumer{
		conn:         conn,
		publisher:    publisher,
		logger:       logger,
		queue:        cfg.Queue,
		exchange:     cfg.Exchange,
		routingKey:   cfg.RoutingKey,
		handler:      cfg.Handler,
		onDeadLetter: cfg.OnDeadLetter,
		prefetch:     prefetch,
		attemptCap:   attemptCap,
		stopCh:       make(chan struct{}),
	}
}

// Start запускает потребление сообщений.
// Блокирует до отмены контекста или вызова Stop.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", Classify(err))
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную после чекпоинта)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", Classify(err))
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-c.stopCh:
			return nil

		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// attemptsOf извлекает счётчик доставок из заголовков.
func attemptsOf(raw *amqp.Delivery) int {
	if raw.Headers == nil {
		return 1
	}
	switch v := raw.Headers[headerAttempts].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.queue,
			"error", err,
		)
		// SerializationError не retryable — сразу в DLQ через nack.
		raw.Nack(false, false)
		return
	}

	delivery := &Delivery{
		Message:  msg,
		Attempts: attemptsOf(&raw),
		Raw:      raw,
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
		"attempts", delivery.Attempts,
	)

	err := c.handler(ctx, delivery)
	if err == nil {
		// Обработчик возвращает nil только после долговечного чекпоинта,
		// поэтому ack здесь соблюдает дисциплину commit-after-checkpoint.
		raw.Ack(false)
		return
	}

	c.logger.Error("handler failed",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
		"attempts", delivery.Attempts,
		"error", err,
	)

	c.retryOrDeadLetter(ctx, delivery, err)
}

// retryOrDeadLetter переиздаёт сообщение или уводит его в DLQ.
// SerializationError не retryable — такие сообщения уходят в DLQ сразу.
func (c *Consumer) retryOrDeadLetter(ctx context.Context, d *Delivery, handlerErr error) {
	next := d.Attempts + 1

	if next > c.attemptCap || errors.Is(handlerErr, ErrSerialization) {
		env := DeadLetterEnvelope{
			OriginalTopic:     string(c.queue),
			OriginalPartition: 0,
			OriginalOffset:    d.Message.ID,
			FirstSeenAt:       d.Message.Timestamp,
			Attempts:          d.Attempts,
		}
		env.LastError.Kind = classifyKind(handlerErr)
		env.LastError.Detail = handlerErr.Error()

		if err := c.publisher.PublishDeadLetter(ctx, env); err != nil {
			c.logger.Error("failed to publish dead letter, requeueing",
				"message_id", d.Message.ID, "error", err)
			d.Raw.Nack(false, true)
			return
		}

		if c.onDeadLetter != nil {
			c.onDeadLetter(ctx, d, handlerErr)
		}

		c.logger.Warn("message routed to dlq",
			"queue", c.queue,
			"message_id", d.Message.ID,
			"attempts", d.Attempts,
		)
		d.Raw.Ack(false)
		return
	}

	if err := c.publisher.publishWithAttempts(ctx, c.exchange, c.routingKey, &d.Message, next); err != nil {
		c.logger.Error("failed to republish for retry, requeueing",
			"message_id", d.Message.ID, "error", err)
		d.Raw.Nack(false, true)
		return
	}
	d.Raw.Ack(false)
}

// classifyKind возвращает имя класса ошибки для DLQ-конверта.
func classifyKind(err error) string {
	switch {
	case errors.Is(err, ErrSerialization):
		return "SerializationError"
	case errors.Is(err, ErrAuth):
		return "AuthError"
	case errors.Is(err, ErrBusUnavailable):
		return "BusUnavailable"
	default:
		return "Retryable"
	}
}

// Stop прекращает приём новых сообщений.
// Выполняющийся обработчик доводит текущее сообщение до конца —
// жёсткая остановка приходит через отмену контекста Start.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
