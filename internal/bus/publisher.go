package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// MessageType — тип сообщения на шине.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRawItem      MessageType = "item.raw"
	MessageTypeClaimWork    MessageType = "claim.work"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeNotification MessageType = "notification"
	MessageTypeDeadLetter   MessageType = "dead.letter"
)

// headerAttempts — заголовок учёта доставок сообщения.
const headerAttempts = "x-attempts"

// Message — конверт сообщения на шине.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Key — ключ партиционирования (source_id, workflow_id, recipient_scope).
	// Порядок доставки сохраняется в пределах одного ключа.
	Key string `json:"key,omitempty"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// AlertSeverity — серьёзность alert-сообщения.
type AlertSeverity string

// Уровни серьёзности.
const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarn     AlertSeverity = "warn"
	SeverityCritical AlertSeverity = "critical"
)

// AlertPayload — исходящее сообщение топика alerts.
type AlertPayload struct {
	WorkflowID string        `json:"workflow_id"`
	Kind       string        `json:"kind"`
	Severity   AlertSeverity `json:"severity"`
	Summary    string        `json:"summary"`
	At         time.Time     `json:"at"`
}

// NotificationPayload — исходящее сообщение топика notifications.
type NotificationPayload struct {
	WorkflowID     string         `json:"workflow_id"`
	Kind           string         `json:"kind"`
	RecipientScope string         `json:"recipient_scope"`
	Summary        string         `json:"summary"`
	Payload        map[string]any `json:"payload,omitempty"`
	At             time.Time      `json:"at"`
}

// ClaimWorkPayload — per-claim работа, вынесенная в отдельный пул потребителей.
type ClaimWorkPayload struct {
	WorkflowID string       `json:"workflow_id"`
	Claim      domain.Claim `json:"claim"`
}

// DeadLetterEnvelope — конверт сообщения, ушедшего в DLQ.
type DeadLetterEnvelope struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    string    `json:"original_offset"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
	LastError         struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	} `json:"last_error"`
	Attempts int `json:"attempts"`
}

// Publisher публикует сообщения на шину.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует конверт в указанный exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	return p.publishWithAttempts(ctx, exchange, routingKey, msg, 1)
}

// publishWithAttempts публикует конверт с явным счётчиком доставок.
func (p *Publisher) publishWithAttempts(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, attempts int) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", ErrSerialization)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Headers:      amqp.Table{headerAttempts: int32(attempts)},
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, Classify(err))
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// newMessage собирает конверт для payload.
func newMessage(msgType MessageType, key string, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", ErrSerialization)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Key:       key,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// PublishRawItem публикует RawItem в топик raw-items (ключ — source_id).
// Потребитель: Orchestrator.
func (p *Publisher) PublishRawItem(ctx context.Context, item *domain.RawItem) error {
	msg, err := newMessage(MessageTypeRawItem, item.SourceID, item)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeRawItems, RoutingKeyRaw, msg)
}

// PublishClaimWork публикует per-claim работу в топик claims
// (ключ — workflow_id; используется при выносе fan-out в отдельный пул).
func (p *Publisher) PublishClaimWork(ctx context.Context, workflowID string, claim domain.Claim) error {
	msg, err := newMessage(MessageTypeClaimWork, workflowID, ClaimWorkPayload{WorkflowID: workflowID, Claim: claim})
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeClaims, RoutingKeyClaim, msg)
}

// PublishAlert публикует высокорисковое уведомление.
func (p *Publisher) PublishAlert(ctx context.Context, alert AlertPayload) error {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	msg, err := newMessage(MessageTypeAlert, alert.WorkflowID, alert)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeAlerts, RoutingKeyAlert, msg)
}

// PublishNotification публикует пользовательское событие
// (ключ — recipient_scope).
func (p *Publisher) PublishNotification(ctx context.Context, n NotificationPayload) error {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	msg, err := newMessage(MessageTypeNotification, n.RecipientScope, n)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeNotifications, RoutingKeyNotify, msg)
}

// PublishDeadLetter маршрутизирует конверт в DLQ.
// DLQ — только для инспекции оператором; обратной подачи нет.
func (p *Publisher) PublishDeadLetter(ctx context.Context, env DeadLetterEnvelope) error {
	msg, err := newMessage(MessageTypeDeadLetter, env.OriginalTopic, env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeDLQ, RoutingKeyDead, msg)
}

// ParsePayload разбирает payload конверта в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", ErrSerialization)
	}
	return result, nil
}
