package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// workflowNamespace — UUIDv5 namespace для детерминированных workflow ID.
// Два RawItem с одинаковым SourceID всегда дают один и тот же WorkflowID.
var workflowNamespace = uuid.MustParse("7f1c3c52-9b14-4f7e-8a6d-2d1b7a9e0c44")

// WorkflowID возвращает детерминированный идентификатор workflow
// как функцию от source_id (дедупликация на уровне идентичности).
func WorkflowID(sourceID string) string {
	return uuid.NewSHA1(workflowNamespace, []byte(sourceID)).String()
}

// NodeError — одна зафиксированная ошибка узла.
// Workflow.Errors — append-only список таких записей.
type NodeError struct {
	// Node — узел, на котором произошла ошибка.
	Node Node `json:"node"`

	// Kind — вид ошибки из таксономии.
	Kind ErrorKind `json:"kind"`

	// Detail — несекретное описание ошибки.
	Detail string `json:"detail"`

	// Attempt — номер попытки (начиная с 1).
	Attempt int `json:"attempt"`

	// Timestamp — время фиксации.
	Timestamp time.Time `json:"timestamp"`
}

// ReviewDecision — решение оператора по workflow в AWAITING_REVIEW.
type ReviewDecision string

const (
	// DecisionApprove — одобрено, конвейер продолжается.
	DecisionApprove ReviewDecision = "approve"

	// DecisionReject — отклонено, workflow завершается без публикации.
	DecisionReject ReviewDecision = "reject"

	// DecisionNeedsInvestigation — передано на расследование, workflow отменяется.
	DecisionNeedsInvestigation ReviewDecision = "needs_investigation"
)

// Valid возвращает true для известных решений.
func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionNeedsInvestigation:
		return true
	default:
		return false
	}
}

// Review — состояние human-review паузы.
//
// Lease — поле на записи Workflow (не отдельная сущность): короткая
// аренда, предотвращающая двойное решение двумя операторами.
type Review struct {
	// RequestedAt — когда workflow встал на review.
	RequestedAt time.Time `json:"requested_at"`

	// Decision — решение оператора (пусто, пока не принято).
	Decision ReviewDecision `json:"decision,omitempty"`

	// DecidedBy — оператор, принявший решение.
	DecidedBy string `json:"decided_by,omitempty"`

	// DecidedAt — время решения.
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	// Feedback — комментарий оператора.
	Feedback string `json:"feedback,omitempty"`

	// LeaseToken — токен текущей аренды.
	LeaseToken string `json:"lease_token,omitempty"`

	// LeaseOperator — оператор, удерживающий аренду.
	LeaseOperator string `json:"lease_operator,omitempty"`

	// LeaseExpiresAt — истечение аренды.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	// LastReminderAt — время последнего напоминания на alerts.
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
}

// LeaseValid проверяет, что токен соответствует живой аренде.
func (r *Review) LeaseValid(token string, now time.Time) bool {
	if r.LeaseToken == "" || r.LeaseToken != token {
		return false
	}
	if r.LeaseExpiresAt == nil || now.After(*r.LeaseExpiresAt) {
		return false
	}
	return true
}

// Workflow — центральная сущность: долговечная запись прохождения
// одного RawItem через конвейер верификации.
//
// Авторитетная мутация Workflow принадлежит исключительно оркестратору,
// владеющему owner-lease; все записи идут через CAS по Version.
type Workflow struct {
	// Version — версия записи для CAS. Первое поле значения в State Store.
	Version int64 `json:"version"`

	// ID — детерминированный идентификатор (см. WorkflowID).
	ID string `json:"workflow_id"`

	// SourceID — стабильный идентификатор исходного элемента.
	SourceID string `json:"source_id"`

	// Source — источник элемента.
	Source string `json:"source"`

	// Payload — исходные данные RawItem (неизменяемые).
	Payload map[string]any `json:"payload,omitempty"`

	// Status — текущий статус по машине состояний.
	Status Status `json:"status"`

	// CurrentNode — узел, на котором находится выполнение.
	CurrentNode Node `json:"current_node"`

	// Results — результаты узлов: имя узла → фрагмент.
	// Непрозрачны для оркестратора, кроме мест, где от них зависит маршрутизация.
	Results map[string]any `json:"results,omitempty"`

	// Errors — append-only журнал ошибок узлов.
	Errors []NodeError `json:"errors,omitempty"`

	// RetryCounts — количество повторов по узлам.
	RetryCounts map[string]int `json:"retry_counts,omitempty"`

	// Claims — утверждения, извлечённые NodeClaimExtract.
	Claims []Claim `json:"claims,omitempty"`

	// RiskScore — оценка риска [0,1] после NodeRiskScore.
	RiskScore *float64 `json:"risk_score,omitempty"`

	// Review — состояние human-review (nil, если не запрашивался).
	Review *Review `json:"review,omitempty"`

	// TerminalNote — терминальная аннотация (например, при reject).
	TerminalNote string `json:"terminal_note,omitempty"`

	// CreatedAt / UpdatedAt — времена создания и последней мутации.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Deadline — общий дедлайн workflow (время в AWAITING_REVIEW не считается).
	Deadline time.Time `json:"deadline"`
}

// NewWorkflow создаёт Workflow в статусе PENDING для RawItem.
func NewWorkflow(item *RawItem, deadline time.Duration) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:          WorkflowID(item.SourceID),
		SourceID:    item.SourceID,
		Source:      item.Source,
		Payload:     item.Payload,
		Status:      StatusPending,
		CurrentNode: NodeNormalize,
		Results:     make(map[string]any),
		RetryCounts: make(map[string]int),
		CreatedAt:   now,
		UpdatedAt:   now,
		Deadline:    now.Add(deadline),
	}
}

// transition выполняет переход статуса с проверкой машины состояний.
func (w *Workflow) transition(to Status) error {
	if !w.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, to)
	}
	w.Status = to
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRunning переводит workflow в RUNNING (взятие оркестратором или
// продолжение после RESUMING).
func (w *Workflow) MarkRunning() error {
	return w.transition(StatusRunning)
}

// MarkAwaitingReview паркует workflow на human-review.
// Инвариант: вызывается только при RiskScore >= порога.
func (w *Workflow) MarkAwaitingReview(now time.Time) error {
	if err := w.transition(StatusAwaitingReview); err != nil {
		return err
	}
	w.Review = &Review{RequestedAt: now}
	return nil
}

// MarkResuming фиксирует получение решения оператора.
func (w *Workflow) MarkResuming() error {
	return w.transition(StatusResuming)
}

// MarkCompleted завершает workflow успешно.
func (w *Workflow) MarkCompleted() error {
	return w.transition(StatusCompleted)
}

// MarkFailed завершает workflow с ошибкой.
func (w *Workflow) MarkFailed(node Node, kind ErrorKind, detail string) error {
	if err := w.transition(StatusFailed); err != nil {
		return err
	}
	w.TerminalNote = fmt.Sprintf("%s: %s", kind, detail)
	w.RecordError(node, kind, detail, w.RetryCounts[node.String()]+1)
	return nil
}

// MarkCancelled отменяет workflow.
func (w *Workflow) MarkCancelled(reason string) error {
	if err := w.transition(StatusCancelled); err != nil {
		return err
	}
	w.TerminalNote = reason
	return nil
}

// RecordError добавляет запись в append-only журнал ошибок.
func (w *Workflow) RecordError(node Node, kind ErrorKind, detail string, attempt int) {
	w.Errors = append(w.Errors, NodeError{
		Node:      node,
		Kind:      kind,
		Detail:    detail,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	})
	w.UpdatedAt = time.Now().UTC()
}

// IncRetry увеличивает счётчик повторов узла и возвращает новое значение.
func (w *Workflow) IncRetry(node Node) int {
	if w.RetryCounts == nil {
		w.RetryCounts = make(map[string]int)
	}
	w.RetryCounts[node.String()]++
	return w.RetryCounts[node.String()]
}

// SetResult записывает фрагмент результата узла.
// Повторная запись допустима только при повторном выполнении узла после
// сбоя (контролируется CAS по Version на уровне State Store).
func (w *Workflow) SetResult(node Node, fragment any) {
	if w.Results == nil {
		w.Results = make(map[string]any)
	}
	w.Results[node.String()] = fragment
	w.UpdatedAt = time.Now().UTC()
}

// Result возвращает фрагмент результата узла.
func (w *Workflow) Result(node Node) (any, bool) {
	v, ok := w.Results[node.String()]
	return v, ok
}

// IsTerminal возвращает true для завершённого workflow.
func (w *Workflow) IsTerminal() bool {
	return w.Status.IsTerminal()
}
