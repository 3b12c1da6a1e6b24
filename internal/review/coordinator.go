package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

// AlertPublisher — публикация напоминаний и аннотаций на alerts.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert bus.AlertPayload) error
}

// Coordinator — координатор human-review.
type Coordinator struct {
	store     store.Store
	publisher AlertPublisher
	cfg       *config.Config
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Config — конфигурация Coordinator.
type Config struct {
	Store     store.Store
	Publisher AlertPublisher
	Cfg       *config.Config
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// New создаёт Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Coordinator{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		cfg:       cfg.Cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// ListFilter — фильтр листинга review-задач.
type ListFilter struct {
	// Offset / Limit — страница.
	Offset int
	Limit  int
}

// List возвращает страницу ReviewTask, упорядоченную по requested_at.
// ReviewTask — проекция записи Workflow, состояние не дублируется.
func (c *Coordinator) List(ctx context.Context, filter ListFilter) ([]domain.ReviewTask, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ids, err := c.store.ReviewList(ctx, filter.Offset, limit)
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.ReviewTask, 0, len(ids))
	for _, id := range ids {
		wf, err := c.store.GetWorkflow(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Запись истекла — чистим индекс.
				_ = c.store.ReviewRemove(ctx, id)
				continue
			}
			return nil, err
		}
		if wf.Status != domain.StatusAwaitingReview || wf.Review == nil {
			_ = c.store.ReviewRemove(ctx, id)
			continue
		}

		task := domain.ReviewTask{
			WorkflowID:  wf.ID,
			SourceID:    wf.SourceID,
			Source:      wf.Source,
			RequestedAt: wf.Review.RequestedAt,
		}
		if wf.RiskScore != nil {
			task.RiskScore = *wf.RiskScore
		}
		if wf.Review.LeaseExpiresAt != nil && time.Now().Before(*wf.Review.LeaseExpiresAt) {
			task.ClaimedBy = wf.Review.LeaseOperator
			task.LeaseUntil = wf.Review.LeaseExpiresAt
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// Claim выдаёт оператору аренду на решение.
//
// Живая аренда другого оператора — ErrAlreadyClaimed; истёкшая аренда
// перезаписывается. Аренда — поле на записи Workflow за CAS.
func (c *Coordinator) Claim(ctx context.Context, workflowID, operator string) (string, error) {
	wf, err := c.loadAwaiting(ctx, workflowID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	r := wf.Review
	if r.LeaseExpiresAt != nil && now.Before(*r.LeaseExpiresAt) && r.LeaseOperator != operator {
		return "", fmt.Errorf("%w: by %s until %s", ErrAlreadyClaimed, r.LeaseOperator, r.LeaseExpiresAt.Format(time.RFC3339))
	}

	token := uuid.New().String()
	expires := now.Add(c.cfg.ReviewLease)
	r.LeaseToken = token
	r.LeaseOperator = operator
	r.LeaseExpiresAt = &expires

	if err := c.store.SaveWorkflow(ctx, wf, c.cfg.WorkflowTTL); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Параллельный claim выиграл CAS.
			return "", ErrAlreadyClaimed
		}
		return "", err
	}

	c.logger.Info("review claimed",
		"workflow_id", workflowID, "operator", operator, "lease_until", expires)
	return token, nil
}

// Decide принимает решение оператора.
//
// Переходы: approve — AWAITING_REVIEW → RESUMING (конвейер продолжит
// оркестратор по сигналу); reject — сразу COMPLETED с терминальной
// аннотацией, без downstream-публикации; needs_investigation — CANCELLED.
func (c *Coordinator) Decide(ctx context.Context, workflowID, leaseToken string, decision domain.ReviewDecision, feedback string) error {
	if !decision.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownDecision, decision)
	}

	wf, err := c.loadAwaiting(ctx, workflowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !wf.Review.LeaseValid(leaseToken, now) {
		return ErrLeaseInvalid
	}

	wf.Review.Decision = decision
	wf.Review.DecidedBy = wf.Review.LeaseOperator
	wf.Review.DecidedAt = &now
	wf.Review.Feedback = feedback
	wf.Review.LeaseToken = ""
	wf.Review.LeaseExpiresAt = nil

	switch decision {
	case domain.DecisionApprove:
		if err := wf.MarkResuming(); err != nil {
			return err
		}
	case domain.DecisionReject:
		wf.TerminalNote = "rejected by " + wf.Review.DecidedBy
		if err := wf.MarkCompleted(); err != nil {
			return err
		}
	case domain.DecisionNeedsInvestigation:
		if err := wf.MarkCancelled("needs investigation: " + feedback); err != nil {
			return err
		}
	}

	if err := c.store.SaveWorkflow(ctx, wf, c.cfg.WorkflowTTL); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return ErrLeaseInvalid
		}
		return err
	}

	if err := c.store.ReviewRemove(ctx, workflowID); err != nil {
		c.logger.Warn("failed to remove from review index", "workflow_id", workflowID, "error", err)
	}
	if wf.IsTerminal() {
		if err := c.store.InFlightRemove(ctx, workflowID); err != nil {
			c.logger.Warn("failed to remove from in-flight index", "workflow_id", workflowID, "error", err)
		}
	}

	c.metrics.ReviewDecisions.WithLabelValues(string(decision)).Inc()
	c.publishDecided(ctx, wf, decision)

	if decision == domain.DecisionReject {
		if err := c.publisher.PublishAlert(ctx, bus.AlertPayload{
			WorkflowID: workflowID,
			Kind:       "review_rejected",
			Severity:   bus.SeverityInfo,
			Summary:    "advisory rejected by operator",
		}); err != nil {
			c.logger.Warn("failed to publish reject alert", "workflow_id", workflowID, "error", err)
		}
	}

	c.logger.Info("review decided",
		"workflow_id", workflowID, "decision", decision, "decided_by", wf.Review.DecidedBy)
	return nil
}

// publishDecided шлёт сигнал review.decided и событие для Observer Plane.
func (c *Coordinator) publishDecided(ctx context.Context, wf *domain.Workflow, decision domain.ReviewDecision) {
	signal, err := json.Marshal(map[string]any{
		"workflow_id": wf.ID,
		"decision":    decision,
	})
	if err != nil {
		return
	}
	if err := c.store.Publish(ctx, store.ChannelReviewDecided, signal); err != nil {
		c.logger.Warn("failed to publish review.decided", "workflow_id", wf.ID, "error", err)
	}

	event, err := json.Marshal(domain.NotificationEvent{
		Type:       domain.EventReviewDecided,
		WorkflowID: wf.ID,
		Payload:    map[string]any{"decision": decision, "decided_by": wf.Review.DecidedBy},
		At:         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.store.Publish(ctx, store.ChannelEvents, event); err != nil {
		c.logger.Debug("failed to publish observer event", "workflow_id", wf.ID, "error", err)
	}
}

// loadAwaiting загружает workflow и проверяет статус AWAITING_REVIEW.
func (c *Coordinator) loadAwaiting(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
		}
		return nil, err
	}
	if wf.Status != domain.StatusAwaitingReview || wf.Review == nil {
		return nil, fmt.Errorf("%w: status %s", ErrNotAwaitingReview, wf.Status)
	}
	return wf, nil
}
