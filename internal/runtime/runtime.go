package runtime

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

// Параметры backoff.
const (
	defaultBackoffBase   = time.Second
	backoffFactor        = 2
	backoffCap           = 10 * time.Second
	backoffJitter        = 0.2
	casRebaseMaxAttempts = 3
)

// Runtime выполняет стадии с retry, таймаутом и классификацией ошибок.
type Runtime struct {
	store   store.Store
	cfg     *config.Config
	metrics *telemetry.Metrics
	logger  *slog.Logger

	// backoffBase переопределяется в тестах.
	backoffBase time.Duration
}

// Config — конфигурация Runtime.
type Config struct {
	Store   store.Store
	Cfg     *config.Config
	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// BackoffBase — база backoff (default 1s).
	BackoffBase time.Duration
}

// New создаёт Runtime.
func New(cfg Config) *Runtime {
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Runtime{
		store:       cfg.Store,
		cfg:         cfg.Cfg,
		metrics:     metrics,
		logger:      logger,
		backoffBase: base,
	}
}

// RunNode выполняет стадию основного конвейера.
//
// Возвращает фрагмент результата либо классифицированную ошибку после
// исчерпания попыток. Каждая неудачная попытка фиксируется в
// Workflow.Errors и RetryCounts через CAS.
func (r *Runtime) RunNode(ctx context.Context, wf *domain.Workflow, stage stages.Stage) (any, *domain.KindError) {
	node := stage.Node()
	logger := telemetry.WithNode(telemetry.WithWorkflowID(r.logger, wf.ID), node.String())

	maxAttempts := r.cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr *domain.KindError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cancelled, err := r.store.IsCancelled(ctx, wf.ID); err == nil && cancelled {
			return nil, domain.NewKindError(domain.KindCancelled, domain.ErrCancelled)
		}

		start := time.Now()
		frag, err := r.applyWithTimeout(ctx, wf, stage)
		r.metrics.NodeDuration.WithLabelValues(node.String()).Observe(time.Since(start).Seconds())

		if err == nil {
			r.metrics.NodeAttemptsTotal.WithLabelValues(node.String(), "ok").Inc()
			return frag, nil
		}

		kind := classify(ctx, err)
		lastErr = domain.NewKindError(kind, err)

		r.metrics.NodeAttemptsTotal.WithLabelValues(node.String(), "error").Inc()
		r.metrics.NodeErrorsTotal.WithLabelValues(node.String(), string(kind)).Inc()

		logger.Warn("node attempt failed",
			"attempt", attempt,
			"kind", kind,
			"error", err,
		)

		if kind == domain.KindCancelled {
			return nil, lastErr
		}

		// Ошибка и счётчик повторов пишутся атомарно через CAS.
		if recErr := r.recordAttempt(ctx, wf, node, kind, err.Error(), attempt); recErr != nil {
			return nil, recErr
		}

		if !kind.Retryable() || attempt == maxAttempts {
			return nil, lastErr
		}

		if err := r.sleep(ctx, attempt); err != nil {
			return nil, domain.NewKindError(domain.KindCancelled, err)
		}
	}

	return nil, lastErr
}

// RunClaimStage выполняет per-claim стадию с теми же retry/timeout
// правилами.
//
// В отличие от RunNode, запись Workflow здесь не мутируется: fan-out
// выполняется конкурентно, поэтому неудачные попытки возвращаются
// вызывающему и агрегируются в Errors/RetryCounts однопоточно при merge.
func (r *Runtime) RunClaimStage(ctx context.Context, wf *domain.Workflow, stage stages.ClaimStage, claim domain.Claim, res *domain.ClaimResult) ([]domain.NodeError, *domain.KindError) {
	node := stage.Node()

	maxAttempts := r.cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var attempts []domain.NodeError
	var lastErr *domain.KindError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cancelled, err := r.store.IsCancelled(ctx, wf.ID); err == nil && cancelled {
			return attempts, domain.NewKindError(domain.KindCancelled, domain.ErrCancelled)
		}

		timeout := r.cfg.NodeTimeout(node)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := stage.Apply(attemptCtx, wf, claim, res)
		cancel()

		if err == nil {
			r.metrics.NodeAttemptsTotal.WithLabelValues(node.String(), "ok").Inc()
			return attempts, nil
		}

		kind := classify(ctx, err)
		lastErr = domain.NewKindError(kind, err)
		attempts = append(attempts, domain.NodeError{
			Node:      node,
			Kind:      kind,
			Detail:    "claim " + claim.ID + ": " + err.Error(),
			Attempt:   attempt,
			Timestamp: time.Now().UTC(),
		})

		r.metrics.NodeAttemptsTotal.WithLabelValues(node.String(), "error").Inc()
		r.metrics.NodeErrorsTotal.WithLabelValues(node.String(), string(kind)).Inc()

		if kind == domain.KindCancelled || !kind.Retryable() || attempt == maxAttempts {
			return attempts, lastErr
		}

		if err := r.sleep(ctx, attempt); err != nil {
			return attempts, domain.NewKindError(domain.KindCancelled, err)
		}
	}

	return attempts, lastErr
}

// applyWithTimeout выполняет стадию под per-node дедлайном.
func (r *Runtime) applyWithTimeout(ctx context.Context, wf *domain.Workflow, stage stages.Stage) (any, error) {
	timeout := r.cfg.NodeTimeout(stage.Node())
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return stage.Apply(attemptCtx, wf)
}

// classify приводит ошибку стадии к таксономии с учётом контекста:
// дедлайн попытки — Timeout, отменённый родительский контекст — Cancelled.
func classify(parent context.Context, err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		if parent.Err() != nil {
			return domain.KindCancelled
		}
		return domain.KindTimeout
	}
	return domain.ClassifyError(err)
}

// recordAttempt пишет ошибку попытки и счётчик повторов через CAS.
// При конфликте версия перечитывается; стойкий конфликт — ConsistencyLost.
func (r *Runtime) recordAttempt(ctx context.Context, wf *domain.Workflow, node domain.Node, kind domain.ErrorKind, detail string, attempt int) *domain.KindError {
	wf.RecordError(node, kind, detail, attempt)
	if kind.Retryable() {
		wf.IncRetry(node)
	}

	for i := 0; i < casRebaseMaxAttempts; i++ {
		err := r.store.SaveWorkflow(ctx, wf, r.cfg.WorkflowTTL)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return domain.NewKindError(domain.KindRetryable, err)
		}

		// Re-read и rebase: запись могла продвинуть только параллельная
		// мутация (например, tombstone-путь); переносим версию.
		fresh, getErr := r.store.GetWorkflow(ctx, wf.ID)
		if getErr != nil {
			return domain.NewKindError(domain.KindRetryable, getErr)
		}
		wf.Version = fresh.Version
	}

	return domain.Kindf(domain.KindConsistencyLost, "cas conflict persisted for %s", wf.ID)
}

// sleep ждёт backoff-задержку с джиттером, уважая контекст.
func (r *Runtime) sleep(ctx context.Context, attempt int) error {
	delay := r.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}
	if delay > backoffCap {
		delay = backoffCap
	}

	// Джиттер ±20%.
	jitter := 1 - backoffJitter + 2*backoffJitter*rand.Float64()
	delay = time.Duration(float64(delay) * jitter)

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
