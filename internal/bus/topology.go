package bus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников (по одному на топик).
const (
	ExchangeRawItems      Exchange = "crisislens.raw-items"
	ExchangeClaims        Exchange = "crisislens.claims"
	ExchangeAlerts        Exchange = "crisislens.alerts"
	ExchangeNotifications Exchange = "crisislens.notifications"
	ExchangeDLQ           Exchange = "crisislens.dlq"
)

// Queues — имена очередей.
const (
	QueueRawItems      Queue = "raw-items"
	QueueClaims        Queue = "claims"
	QueueAlerts        Queue = "alerts"
	QueueNotifications Queue = "notifications"
	QueueDLQ           Queue = "dlq"
)

// Routing keys.
const (
	RoutingKeyRaw    RoutingKey = "raw"
	RoutingKeyClaim  RoutingKey = "claim"
	RoutingKeyAlert  RoutingKey = "alert"
	RoutingKeyNotify RoutingKey = "notify"
	RoutingKeyDead   RoutingKey = "dead"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентно: повторное объявление существующей топологии безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []Exchange{
		ExchangeRawItems,
		ExchangeClaims,
		ExchangeAlerts,
		ExchangeNotifications,
		ExchangeDLQ,
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, Classify(err))
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Очереди рабочих топиков маршрутизируют отвергнутые сообщения в DLQ.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDead),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueRawItems, dlqArgs},
		{QueueClaims, dlqArgs},

		// События alerts/notifications потребляются без повторной доставки.
		{QueueAlerts, nil},
		{QueueNotifications, nil},

		// Сама DLQ очередь.
		{QueueDLQ, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, Classify(err))
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRawItems, RoutingKeyRaw, ExchangeRawItems},
		{QueueClaims, RoutingKeyClaim, ExchangeClaims},
		{QueueAlerts, RoutingKeyAlert, ExchangeAlerts},
		{QueueNotifications, RoutingKeyNotify, ExchangeNotifications},
		{QueueDLQ, RoutingKeyDead, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, Classify(err))
		}
	}

	return nil
}
