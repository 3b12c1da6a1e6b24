package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/runtime"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/telemetry"
)

// dedupLockTTL — срок жизни дедуп-токена wf:lock:{source_id}.
// Сама дедупликация обеспечивается детерминированным workflow_id и
// NX-созданием записи; токен — быстрый путь для повторных доставок.
const dedupLockTTL = time.Hour

// BusPublisher — исходящие публикации оркестратора на шину.
type BusPublisher interface {
	PublishAlert(ctx context.Context, alert bus.AlertPayload) error
	PublishNotification(ctx context.Context, n bus.NotificationPayload) error
}

// Orchestrator ведёт workflow по конвейеру.
type Orchestrator struct {
	store     store.Store
	publisher BusPublisher
	runtime   *runtime.Runtime
	stages    *stages.Set
	cfg       *config.Config
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	// owner — идентичность этого процесса для owner-lease.
	owner string

	// active — workflow, обрабатываемые этим процессом прямо сейчас.
	active map[string]bool
	mu     sync.Mutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store     store.Store
	Publisher BusPublisher
	Runtime   *runtime.Runtime
	Stages    *stages.Set
	Cfg       *config.Config
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger

	// Owner — идентичность процесса (пусто — генерируется).
	Owner string
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	owner := cfg.Owner
	if owner == "" {
		owner = "orch-" + uuid.New().String()[:8]
	}

	return &Orchestrator{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		runtime:   cfg.Runtime,
		stages:    cfg.Stages,
		cfg:       cfg.Cfg,
		metrics:   metrics,
		logger:    logger,
		owner:     owner,
		active:    make(map[string]bool),
	}
}

// Owner возвращает идентичность процесса.
func (o *Orchestrator) Owner() string {
	return o.owner
}

// markActive регистрирует workflow как обрабатываемый этим процессом.
func (o *Orchestrator) markActive(workflowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[workflowID] {
		return false
	}
	o.active[workflowID] = true
	o.metrics.WorkflowsActive.Set(float64(len(o.active)))
	return true
}

// unmarkActive снимает workflow с учёта.
func (o *Orchestrator) unmarkActive(workflowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, workflowID)
	o.metrics.WorkflowsActive.Set(float64(len(o.active)))
}

// ActiveCount возвращает количество workflow в обработке.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// acquireLease захватывает owner-lease workflow.
func (o *Orchestrator) acquireLease(ctx context.Context, workflowID string) (bool, error) {
	ok, holder, err := o.store.AcquireLock(ctx, store.LeaseKey(workflowID), o.owner, o.cfg.OwnerLease)
	if err != nil {
		return false, err
	}
	if !ok && holder == o.owner {
		// Lease уже наш (повторный вход после ошибки).
		return true, nil
	}
	return ok, nil
}

// renewLease продлевает owner-lease.
func (o *Orchestrator) renewLease(ctx context.Context, workflowID string) {
	if _, err := o.store.RenewLock(ctx, store.LeaseKey(workflowID), o.owner, o.cfg.OwnerLease); err != nil {
		o.logger.Warn("failed to renew owner lease", "workflow_id", workflowID, "error", err)
	}
}

// releaseLease освобождает owner-lease.
func (o *Orchestrator) releaseLease(ctx context.Context, workflowID string) {
	if err := o.store.ReleaseLock(ctx, store.LeaseKey(workflowID), o.owner); err != nil {
		o.logger.Warn("failed to release owner lease", "workflow_id", workflowID, "error", err)
	}
}

// saveState пишет запись Workflow через CAS с rebase при конфликте.
func (o *Orchestrator) saveState(ctx context.Context, wf *domain.Workflow) error {
	for attempt := 0; attempt < 3; attempt++ {
		err := o.store.SaveWorkflow(ctx, wf, o.cfg.WorkflowTTL)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		fresh, getErr := o.store.GetWorkflow(ctx, wf.ID)
		if getErr != nil {
			return getErr
		}
		wf.Version = fresh.Version
	}
	return store.ErrVersionConflict
}

// checkpoint пишет чекпоинт завершённого узла.
// Вызывается ДО публикации событий и до ack входного сообщения.
func (o *Orchestrator) checkpoint(ctx context.Context, wf *domain.Workflow, node domain.Node, attempt int) error {
	snapshot, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	return o.store.PutCheckpoint(ctx, &domain.Checkpoint{
		WorkflowID: wf.ID,
		Node:       node,
		Attempt:    attempt,
		Snapshot:   snapshot,
		CreatedAt:  time.Now().UTC(),
	}, o.cfg.WorkflowTTL)
}

// publishEvent шлёт транзиентное событие в Observer Plane через
// pub/sub канал State Store. Неуспех публикации не влияет на workflow.
func (o *Orchestrator) publishEvent(ctx context.Context, eventType domain.EventType, wf *domain.Workflow, payload map[string]any) {
	event := domain.NotificationEvent{
		Type:       eventType,
		WorkflowID: wf.ID,
		Payload:    payload,
		At:         time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := o.store.Publish(ctx, store.ChannelEvents, body); err != nil {
		o.logger.Debug("failed to publish observer event",
			"workflow_id", wf.ID, "type", eventType, "error", err)
	}
}
