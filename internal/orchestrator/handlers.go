package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// HandleRawItem — обработчик доставок raw-items для bus.Consumer.
func (o *Orchestrator) HandleRawItem(ctx context.Context, delivery *bus.Delivery) error {
	o.metrics.MessagesConsumed.WithLabelValues(string(bus.QueueRawItems)).Inc()

	item, err := bus.ParsePayload[domain.RawItem](&delivery.Message)
	if err != nil {
		// SerializationError не retryable: пусть уходит в DLQ.
		return err
	}

	return o.ProcessRawItem(ctx, &item)
}

// HandleDeadLetter вызывается шлюзом при маршрутизации сообщения в DLQ:
// связанный workflow (если есть) получает терминальный FAILED.
func (o *Orchestrator) HandleDeadLetter(ctx context.Context, delivery *bus.Delivery, lastErr error) {
	o.metrics.DLQRoutedTotal.Inc()

	item, err := bus.ParsePayload[domain.RawItem](&delivery.Message)
	if err != nil || item.SourceID == "" {
		return
	}

	workflowID := domain.WorkflowID(item.SourceID)
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return
	}
	if wf.IsTerminal() {
		return
	}

	if err := o.failWorkflow(ctx, wf, wf.CurrentNode, domain.KindRetryable,
		fmt.Sprintf("message exceeded delivery attempts: %v", lastErr)); err != nil {
		o.logger.Warn("failed to fail workflow for dead letter",
			"workflow_id", workflowID, "error", err)
	}
}

// reviewDecidedSignal — сообщение канала review.decided.
type reviewDecidedSignal struct {
	WorkflowID string                `json:"workflow_id"`
	Decision   domain.ReviewDecision `json:"decision"`
}

// ListenReviewDecisions подписывается на review.decided и возобновляет
// одобренные workflow. Блокирует до отмены контекста.
//
// Push-модель вместо поллинга: координатор публикует сигнал в момент
// решения, оркестраторы не опрашивают индекс.
func (o *Orchestrator) ListenReviewDecisions(ctx context.Context) error {
	ch, stop, err := o.store.Subscribe(ctx, store.ChannelReviewDecided)
	if err != nil {
		return err
	}
	defer stop()

	o.logger.Info("listening for review decisions")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}

			var signal reviewDecidedSignal
			if err := json.Unmarshal(raw, &signal); err != nil {
				o.logger.Warn("malformed review.decided signal", "error", err)
				continue
			}

			if signal.Decision != domain.DecisionApprove {
				continue
			}

			if err := o.ResumeDecided(ctx, signal.WorkflowID); err != nil {
				if errors.Is(err, ErrNotOwner) {
					// Другой оркестратор подхватил — не наша работа.
					continue
				}
				o.logger.Error("failed to resume decided workflow",
					"workflow_id", signal.WorkflowID, "error", err)
			}
		}
	}
}

// Cancel пишет tombstone отмены.
//
// Выполняющийся узел увидит tombstone на ближайшей границе; workflow
// в AWAITING_REVIEW отменяется немедленно. Терминальный workflow
// отклоняет отмену с ErrTerminal.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return err
	}

	if wf.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, wf.Status)
	}

	if err := o.store.SetCancel(ctx, workflowID, o.cfg.WorkflowTTL); err != nil {
		return err
	}

	// Запаркованный workflow никто не ведёт — финализируем немедленно.
	if wf.Status == domain.StatusAwaitingReview || wf.Status == domain.StatusPending {
		ok, err := o.acquireLease(ctx, workflowID)
		if err != nil {
			return err
		}
		if ok {
			defer o.releaseLease(ctx, workflowID)
			return o.cancelWorkflow(ctx, wf, "cancel requested")
		}
	}

	return nil
}

// Recover — восстановительный проход: находит незавершённые workflow
// без живого владельца и возобновляет их с последнего чекпоинта.
//
// Вызывается Supervisor'ом на старте процесса и периодически.
func (o *Orchestrator) Recover(ctx context.Context) error {
	ids, err := o.store.InFlightList(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := o.recoverOne(ctx, id); err != nil {
			o.logger.Warn("recovery failed for workflow", "workflow_id", id, "error", err)
		}
	}
	return nil
}

// recoverOne пытается усыновить один осиротевший workflow.
func (o *Orchestrator) recoverOne(ctx context.Context, workflowID string) error {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Запись истекла — чистим индекс.
			return o.store.InFlightRemove(ctx, workflowID)
		}
		return err
	}

	if wf.IsTerminal() {
		return o.store.InFlightRemove(ctx, workflowID)
	}

	// Запаркованные workflow не осиротевшие: их возобновит решение оператора.
	if wf.Status == domain.StatusAwaitingReview {
		return nil
	}

	// Живой владелец удерживает lease — не трогаем.
	ok, err := o.acquireLease(ctx, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if !o.markActive(wf.ID) {
		o.releaseLease(ctx, wf.ID)
		return nil
	}
	defer o.unmarkActive(wf.ID)
	defer o.releaseLease(ctx, wf.ID)

	// Рехидратация: запись состояния авторитетна, чекпоинт подтверждает
	// последний завершённый узел. Возобновляем со СЛЕДУЮЩЕГО узла —
	// он уже записан в CurrentNode при чекпоинте.
	if cp, err := o.store.LatestCheckpoint(ctx, workflowID); err == nil {
		o.logger.Info("recovering workflow from checkpoint",
			"workflow_id", workflowID,
			"checkpoint_node", cp.Node,
			"resume_node", wf.CurrentNode,
		)
	} else {
		o.logger.Info("recovering workflow without checkpoint",
			"workflow_id", workflowID,
			"resume_node", wf.CurrentNode,
		)
	}

	switch wf.Status {
	case domain.StatusPending:
		if err := wf.MarkRunning(); err != nil {
			return err
		}
		if err := o.saveState(ctx, wf); err != nil {
			return err
		}
	case domain.StatusResuming:
		wf.CurrentNode = resumeNodeFor(wf)
		if err := wf.MarkRunning(); err != nil {
			return err
		}
		wf.Deadline = time.Now().Add(o.cfg.WorkflowDeadline)
		if err := o.saveState(ctx, wf); err != nil {
			return err
		}
	}

	return o.runPipeline(ctx, wf)
}

// resumeNodeFor возвращает узел продолжения для RESUMING workflow.
func resumeNodeFor(wf *domain.Workflow) domain.Node {
	if wf.Review != nil && wf.Review.Decision == domain.DecisionApprove {
		return domain.NodeDraftAdvisory
	}
	return wf.CurrentNode
}
