package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Store — контракт State Store для всех компонентов платформы.
//
// Мутирует записи Workflow только оркестратор, владеющий owner-lease;
// остальные компоненты читают или пишут через него.
type Store interface {
	// --- Workflow ---

	// CreateWorkflow создаёт запись, если её ещё нет (NX).
	// Возвращает ErrAlreadyExists при конфликте.
	CreateWorkflow(ctx context.Context, wf *domain.Workflow, ttl time.Duration) error

	// GetWorkflow возвращает запись Workflow или ErrNotFound.
	GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error)

	// SaveWorkflow записывает Workflow через CAS: версия в хранилище
	// должна совпадать с wf.Version. При успехе wf.Version увеличивается.
	// Возвращает ErrVersionConflict для устаревшей записи.
	SaveWorkflow(ctx context.Context, wf *domain.Workflow, ttl time.Duration) error

	// --- Checkpoints ---

	// PutCheckpoint пишет чекпоинт узла и помечает его последним.
	PutCheckpoint(ctx context.Context, cp *domain.Checkpoint, ttl time.Duration) error

	// LatestCheckpoint возвращает последний чекпоинт workflow или ErrNotFound.
	LatestCheckpoint(ctx context.Context, workflowID string) (*domain.Checkpoint, error)

	// --- Locks / leases ---

	// AcquireLock пытается захватить ключ (SETNX). Возвращает true при
	// успехе; при занятом ключе — false и текущее значение.
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, string, error)

	// RenewLock продлевает ключ, если он всё ещё удерживается value.
	RenewLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// ReleaseLock освобождает ключ, если он удерживается value.
	ReleaseLock(ctx context.Context, key, value string) error

	// --- Cancellation ---

	// SetCancel пишет tombstone отмены workflow.
	SetCancel(ctx context.Context, workflowID string, ttl time.Duration) error

	// IsCancelled проверяет наличие tombstone.
	IsCancelled(ctx context.Context, workflowID string) (bool, error)

	// --- Review index ---

	// ReviewAdd добавляет workflow в review:pending (score = requested_at).
	ReviewAdd(ctx context.Context, workflowID string, requestedAt time.Time) error

	// ReviewRemove убирает workflow из review:pending.
	ReviewRemove(ctx context.Context, workflowID string) error

	// ReviewList возвращает страницу workflow_id, отсортированных по requested_at.
	ReviewList(ctx context.Context, offset, limit int) ([]string, error)

	// --- In-flight index (для recovery) ---

	// InFlightAdd регистрирует незавершённый workflow.
	InFlightAdd(ctx context.Context, workflowID string) error

	// InFlightRemove снимает workflow с учёта.
	InFlightRemove(ctx context.Context, workflowID string) error

	// InFlightList возвращает все незавершённые workflow.
	InFlightList(ctx context.Context) ([]string, error)

	// --- Pub/sub ---

	// Publish отправляет сообщение в канал.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe подписывается на канал. Возвращает канал сообщений и
	// функцию отписки.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)

	// Close закрывает подключение.
	Close() error
}

// EncodeWorkflow сериализует Workflow для хранения.
//
// Формат значения: "<version>\n<json>" — версия записи идёт первым полем,
// чтобы CAS-скрипт мог сравнить её без разбора всего значения.
func EncodeWorkflow(wf *domain.Workflow, version int64) ([]byte, error) {
	clone := *wf
	clone.Version = version
	body, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(version, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeWorkflow разбирает значение из хранилища.
func DecodeWorkflow(raw []byte) (*domain.Workflow, error) {
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return nil, fmt.Errorf("malformed workflow value: no version prefix")
	}
	version, err := strconv.ParseInt(string(raw[:idx]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed workflow version: %w", err)
	}
	var wf domain.Workflow
	if err := json.Unmarshal(raw[idx+1:], &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	wf.Version = version
	return &wf, nil
}
