package domain

import "time"

// EventType — тип события для Observer Plane.
type EventType string

// Типы событий.
const (
	EventStatusChanged   EventType = "status_changed"
	EventRiskScored      EventType = "risk_scored"
	EventReviewRequested EventType = "review_requested"
	EventReviewDecided   EventType = "review_decided"
	EventCompleted       EventType = "completed"
	EventFailed          EventType = "failed"

	// EventLag — маркер потери событий при переполнении очереди подписчика.
	EventLag EventType = "lag"

	// EventHello — приветствие при подключении подписчика.
	EventHello EventType = "hello"
)

// NotificationEvent — транзиентное событие о переходе состояния.
//
// Только broadcast, никогда не авторитетно: подписчики обязаны сверяться
// с State Store при переподключении.
type NotificationEvent struct {
	// Type — тип события.
	Type EventType `json:"type"`

	// WorkflowID — workflow, к которому относится событие.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Payload — данные события (статус, оценка риска, решение, ...).
	Payload map[string]any `json:"payload,omitempty"`

	// At — время события.
	At time.Time `json:"at"`
}

// ReviewTask — представление workflow в AWAITING_REVIEW для листинга
// операторами. Не дублирует состояние — проекция записи Workflow.
type ReviewTask struct {
	WorkflowID  string     `json:"workflow_id"`
	SourceID    string     `json:"source_id"`
	Source      string     `json:"source"`
	RiskScore   float64    `json:"risk_score"`
	RequestedAt time.Time  `json:"requested_at"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	LeaseUntil  *time.Time `json:"lease_until,omitempty"`
}
