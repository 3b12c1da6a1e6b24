package review

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// reminderCronSpec — расписание обхода просроченных review.
const reminderCronSpec = "@every 1h"

// reminderSweepPage — размер страницы обхода индекса.
const reminderSweepPage = 100

// StartReminders запускает периодический обход просроченных review.
//
// Workflow, простоявший в AWAITING_REVIEW дольше review_deadline,
// остаётся запаркованным — автоматического решения нет — но получает
// периодическое напоминание на alerts (не чаще раза в review_deadline/24;
// при дефолтных 24h это час, равный периоду обхода).
// Возвращает функцию остановки.
func (c *Coordinator) StartReminders(ctx context.Context) func() {
	runner := cron.New()
	_, err := runner.AddFunc(reminderCronSpec, func() {
		if err := c.sweepOverdue(ctx); err != nil {
			c.logger.Warn("review reminder sweep failed", "error", err)
		}
	})
	if err != nil {
		c.logger.Error("failed to schedule reminder sweep", "error", err)
		return func() {}
	}

	runner.Start()
	c.logger.Info("review reminder sweep scheduled", "spec", reminderCronSpec)

	return func() {
		stopCtx := runner.Stop()
		<-stopCtx.Done()
	}
}

// sweepOverdue публикует напоминания для просроченных review.
func (c *Coordinator) sweepOverdue(ctx context.Context) error {
	now := time.Now().UTC()

	for offset := 0; ; offset += reminderSweepPage {
		ids, err := c.store.ReviewList(ctx, offset, reminderSweepPage)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		for _, id := range ids {
			if err := c.remindOne(ctx, id, now); err != nil {
				c.logger.Warn("reminder failed", "workflow_id", id, "error", err)
			}
		}

		if len(ids) < reminderSweepPage {
			return nil
		}
	}
}

// remindOne шлёт напоминание для одного просроченного workflow.
func (c *Coordinator) remindOne(ctx context.Context, workflowID string, now time.Time) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status != domain.StatusAwaitingReview || wf.Review == nil {
		return nil
	}

	// Ещё не просрочен.
	if now.Sub(wf.Review.RequestedAt) < c.cfg.ReviewDeadline {
		return nil
	}

	// Напоминание уже уходило за последние review_deadline/24.
	if wf.Review.LastReminderAt != nil && now.Sub(*wf.Review.LastReminderAt) < c.cfg.ReviewDeadline/24 {
		return nil
	}

	overdue := now.Sub(wf.Review.RequestedAt).Round(time.Minute)
	if err := c.publisher.PublishAlert(ctx, bus.AlertPayload{
		WorkflowID: workflowID,
		Kind:       "review_overdue",
		Severity:   bus.SeverityWarn,
		Summary:    "awaiting review for " + overdue.String(),
	}); err != nil {
		return err
	}

	c.metrics.ReviewReminders.Inc()

	wf.Review.LastReminderAt = &now
	if err := c.store.SaveWorkflow(ctx, wf, c.cfg.WorkflowTTL); err != nil {
		// Конфликт означает параллельную мутацию (claim/decide) — не страшно,
		// следующий обход перечитает.
		if errors.Is(err, store.ErrVersionConflict) {
			return nil
		}
		return err
	}
	return nil
}
