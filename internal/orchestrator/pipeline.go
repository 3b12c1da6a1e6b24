package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/pipeline"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// ProcessRawItem обрабатывает одну доставку из raw-items.
//
// Возврат nil означает: состояние workflow долговечно зафиксировано
// (завершён, запаркован на review или терминально упал) и сообщение
// можно подтверждать. Ошибка приводит к повторной доставке.
func (o *Orchestrator) ProcessRawItem(ctx context.Context, item *domain.RawItem) error {
	if err := item.Validate(); err != nil {
		// Некорректный вход не станет лучше при повторе.
		o.logger.Warn("dropping invalid raw item", "source", item.Source, "error", err)
		return nil
	}

	workflowID := domain.WorkflowID(item.SourceID)
	logger := o.logger.With("workflow_id", workflowID, "source_id", item.SourceID)

	// Дедупликация: CAS(wf:lock:{source_id}, absent, workflow_id).
	acquired, _, err := o.store.AcquireLock(ctx, store.DedupKey(item.SourceID), workflowID, dedupLockTTL)
	if err != nil {
		return err
	}

	wf := domain.NewWorkflow(item, o.cfg.WorkflowDeadline)

	if acquired {
		if err := o.store.CreateWorkflow(ctx, wf, o.cfg.WorkflowTTL); err != nil {
			if !errors.Is(err, store.ErrAlreadyExists) {
				return err
			}
			acquired = false
		}
	}

	if !acquired {
		existing, err := o.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Токен есть, записи нет: создатель упал между локом и
				// созданием. Создаём заново.
				if err := o.store.CreateWorkflow(ctx, wf, o.cfg.WorkflowTTL); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
					return err
				}
			} else {
				return err
			}
		} else {
			if existing.IsTerminal() || existing.Status == domain.StatusAwaitingReview {
				// Дубликат: идемпотентное подтверждение без побочных эффектов.
				o.metrics.DuplicatesDropped.Inc()
				logger.Debug("duplicate delivery acknowledged", "status", existing.Status)
				return nil
			}
			// Незавершённый workflow: это повторная доставка после сбоя —
			// продолжаем с сохранённого состояния.
			wf = existing
		}
	}

	return o.drive(ctx, wf, acquired)
}

// drive захватывает владение workflow и ведёт его по конвейеру.
func (o *Orchestrator) drive(ctx context.Context, wf *domain.Workflow, fresh bool) error {
	ok, err := o.acquireLease(ctx, wf.ID)
	if err != nil {
		return err
	}
	if !ok {
		// Живой владелец уже ведёт этот workflow — доставка дублирует работу.
		o.metrics.DuplicatesDropped.Inc()
		return nil
	}

	if !o.markActive(wf.ID) {
		return nil
	}
	defer o.unmarkActive(wf.ID)
	defer o.releaseLease(ctx, wf.ID)

	if err := o.store.InFlightAdd(ctx, wf.ID); err != nil {
		return err
	}

	if wf.Status == domain.StatusPending {
		if err := wf.MarkRunning(); err != nil {
			return err
		}
		if err := o.saveState(ctx, wf); err != nil {
			return err
		}
		if fresh {
			o.metrics.WorkflowsStarted.Inc()
		}
		o.publishEvent(ctx, domain.EventStatusChanged, wf, map[string]any{"status": wf.Status})
	}

	return o.runPipeline(ctx, wf)
}

// runPipeline выполняет узлы с wf.CurrentNode до паузы или терминала.
func (o *Orchestrator) runPipeline(ctx context.Context, wf *domain.Workflow) error {
	for {
		o.renewLease(ctx, wf.ID)

		if cancelled, err := o.store.IsCancelled(ctx, wf.ID); err == nil && cancelled {
			return o.cancelWorkflow(ctx, wf, "cancel requested")
		}

		if time.Now().After(wf.Deadline) {
			return o.failWorkflow(ctx, wf, wf.CurrentNode, domain.KindTimeout, "workflow deadline exceeded")
		}

		node := wf.CurrentNode
		stage, ok := o.stages.ForNode(node)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoStage, node)
		}

		frag, kerr := o.runtime.RunNode(ctx, wf, stage)
		if kerr != nil {
			switch kerr.Kind {
			case domain.KindCancelled:
				return o.cancelWorkflow(ctx, wf, "cancelled during "+node.String())
			default:
				return o.failWorkflow(ctx, wf, node, kerr.Kind, kerr.Error())
			}
		}

		attempt := wf.RetryCounts[node.String()] + 1
		wf.SetResult(node, frag)

		// Fan-out per claim между ClaimExtract и RiskScore.
		if pipeline.HasFanOut(node) {
			if kerr := o.runFanOut(ctx, wf); kerr != nil {
				if kerr.Kind == domain.KindCancelled {
					return o.cancelWorkflow(ctx, wf, "cancelled during claim fan-out")
				}
				return o.failWorkflow(ctx, wf, node, kerr.Kind, kerr.Error())
			}
		}

		step, err := pipeline.After(node, wf, o.cfg.ReviewThreshold)
		if err != nil {
			return o.failWorkflow(ctx, wf, node, domain.KindValidation, err.Error())
		}

		switch {
		case step.AwaitReview:
			return o.parkForReview(ctx, wf, node, attempt)

		case step.Done:
			return o.completeWorkflow(ctx, wf, node, attempt)

		default:
			wf.CurrentNode = step.Node
			if err := wf.MarkRunning(); err != nil {
				return err
			}
			// Порядок анонса: CAS-запись состояния → чекпоинт → события.
			if err := o.saveState(ctx, wf); err != nil {
				return err
			}
			if err := o.checkpoint(ctx, wf, node, attempt); err != nil {
				return err
			}
			o.publishEvent(ctx, domain.EventStatusChanged, wf, map[string]any{
				"status": wf.Status,
				"node":   wf.CurrentNode,
			})
			if node == domain.NodeRiskScore && wf.RiskScore != nil {
				o.publishEvent(ctx, domain.EventRiskScored, wf, map[string]any{"risk_score": *wf.RiskScore})
			}
		}
	}
}

// parkForReview паркует workflow на human-review.
func (o *Orchestrator) parkForReview(ctx context.Context, wf *domain.Workflow, node domain.Node, attempt int) error {
	now := time.Now().UTC()
	if err := wf.MarkAwaitingReview(now); err != nil {
		return err
	}
	if err := o.saveState(ctx, wf); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, wf, node, attempt); err != nil {
		return err
	}
	if err := o.store.ReviewAdd(ctx, wf.ID, now); err != nil {
		return err
	}

	o.metrics.ReviewRequested.Inc()

	risk := 0.0
	if wf.RiskScore != nil {
		risk = *wf.RiskScore
	}
	if err := o.publisher.PublishAlert(ctx, bus.AlertPayload{
		WorkflowID: wf.ID,
		Kind:       "review_requested",
		Severity:   bus.SeverityCritical,
		Summary:    fmt.Sprintf("risk %.2f meets review threshold", risk),
	}); err != nil {
		o.logger.Warn("failed to publish review alert", "workflow_id", wf.ID, "error", err)
	}

	o.publishEvent(ctx, domain.EventRiskScored, wf, map[string]any{"risk_score": risk})
	o.publishEvent(ctx, domain.EventReviewRequested, wf, map[string]any{"risk_score": risk})

	o.logger.Info("workflow parked for review", "workflow_id", wf.ID, "risk_score", risk)
	return nil
}

// completeWorkflow финализирует успешный workflow.
func (o *Orchestrator) completeWorkflow(ctx context.Context, wf *domain.Workflow, node domain.Node, attempt int) error {
	if err := wf.MarkCompleted(); err != nil {
		return err
	}
	if err := o.saveState(ctx, wf); err != nil {
		return err
	}
	if err := o.checkpoint(ctx, wf, node, attempt); err != nil {
		return err
	}
	if err := o.store.InFlightRemove(ctx, wf.ID); err != nil {
		o.logger.Warn("failed to remove from in-flight index", "workflow_id", wf.ID, "error", err)
	}

	o.metrics.WorkflowsCompleted.WithLabelValues(string(domain.StatusCompleted)).Inc()

	if err := o.publisher.PublishNotification(ctx, bus.NotificationPayload{
		WorkflowID:     wf.ID,
		Kind:           "workflow_completed",
		RecipientScope: "global",
		Summary:        "verification completed",
	}); err != nil {
		o.logger.Warn("failed to publish completion notification", "workflow_id", wf.ID, "error", err)
	}

	o.publishEvent(ctx, domain.EventCompleted, wf, map[string]any{"status": wf.Status})

	o.logger.Info("workflow completed", "workflow_id", wf.ID)
	return nil
}

// failWorkflow переводит workflow в FAILED и анонсирует сбой.
func (o *Orchestrator) failWorkflow(ctx context.Context, wf *domain.Workflow, node domain.Node, kind domain.ErrorKind, detail string) error {
	if err := wf.MarkFailed(node, kind, detail); err != nil {
		return err
	}
	if err := o.saveState(ctx, wf); err != nil {
		return err
	}
	if err := o.store.InFlightRemove(ctx, wf.ID); err != nil {
		o.logger.Warn("failed to remove from in-flight index", "workflow_id", wf.ID, "error", err)
	}

	o.metrics.WorkflowsCompleted.WithLabelValues(string(domain.StatusFailed)).Inc()

	if err := o.publisher.PublishAlert(ctx, bus.AlertPayload{
		WorkflowID: wf.ID,
		Kind:       string(kind),
		Severity:   bus.SeverityWarn,
		Summary:    fmt.Sprintf("workflow failed at %s", node),
	}); err != nil {
		o.logger.Warn("failed to publish failure alert", "workflow_id", wf.ID, "error", err)
	}

	o.publishEvent(ctx, domain.EventFailed, wf, map[string]any{
		"kind":   kind,
		"node":   node,
		"detail": detail,
	})

	o.logger.Warn("workflow failed",
		"workflow_id", wf.ID, "node", node, "kind", kind, "detail", detail)
	return nil
}

// cancelWorkflow переводит workflow в CANCELLED.
func (o *Orchestrator) cancelWorkflow(ctx context.Context, wf *domain.Workflow, reason string) error {
	if err := wf.MarkCancelled(reason); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Уже терминален — отмена опоздала, это не ошибка доставки.
			return nil
		}
		return err
	}
	if err := o.saveState(ctx, wf); err != nil {
		return err
	}
	if err := o.store.InFlightRemove(ctx, wf.ID); err != nil {
		o.logger.Warn("failed to remove from in-flight index", "workflow_id", wf.ID, "error", err)
	}
	if err := o.store.ReviewRemove(ctx, wf.ID); err != nil {
		o.logger.Warn("failed to remove from review index", "workflow_id", wf.ID, "error", err)
	}

	o.metrics.WorkflowsCompleted.WithLabelValues(string(domain.StatusCancelled)).Inc()
	o.publishEvent(ctx, domain.EventStatusChanged, wf, map[string]any{"status": wf.Status})

	o.logger.Info("workflow cancelled", "workflow_id", wf.ID, "reason", reason)
	return nil
}

// ResumeDecided возобновляет workflow после решения approve.
//
// Координатор review уже перевёл статус в RESUMING; здесь конвейер
// продолжается с первого пост-review узла.
func (o *Orchestrator) ResumeDecided(ctx context.Context, workflowID string) error {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return err
	}

	if wf.Status != domain.StatusResuming {
		// reject/needs_investigation финализируются координатором.
		return nil
	}

	ok, err := o.acquireLease(ctx, wf.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwner
	}

	if !o.markActive(wf.ID) {
		o.releaseLease(ctx, wf.ID)
		return nil
	}
	defer o.unmarkActive(wf.ID)
	defer o.releaseLease(ctx, wf.ID)

	wf.CurrentNode = pipeline.ResumeNode()
	if err := wf.MarkRunning(); err != nil {
		return err
	}

	// Время на review не входит в общий дедлайн конвейера.
	wf.Deadline = time.Now().Add(o.cfg.WorkflowDeadline)

	if err := o.saveState(ctx, wf); err != nil {
		return err
	}
	o.publishEvent(ctx, domain.EventStatusChanged, wf, map[string]any{
		"status": wf.Status,
		"node":   wf.CurrentNode,
	})

	o.logger.Info("workflow resumed after review", "workflow_id", wf.ID)
	return o.runPipeline(ctx, wf)
}
