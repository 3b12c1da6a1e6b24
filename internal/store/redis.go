package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// casScript — атомарный compare-and-swap по версии записи.
//
// KEYS[1] — ключ записи; ARGV[1] — ожидаемая версия ("0" — записи нет),
// ARGV[2] — новое значение, ARGV[3] — TTL в миллисекундах (0 — без TTL).
// Версия — префикс значения до первого '\n'.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then
  if ARGV[1] == '0' then
    if tonumber(ARGV[3]) > 0 then
      redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
    else
      redis.call('SET', KEYS[1], ARGV[2])
    end
    return 1
  end
  return 0
end
local nl = string.find(cur, '\n', 1, true)
if nl == nil then return 0 end
if string.sub(cur, 1, nl - 1) ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// releaseScript — compare-and-delete для освобождения lock/lease.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript — продление TTL, если ключ всё ещё удерживается владельцем.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var _ Store = (*RedisStore)(nil)

// RedisStore — реализация Store на Redis.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore подключается к Redis по URL и проверяет соединение.
func NewRedisStore(ctx context.Context, url string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}

	logger.Info("connected to state store")

	return &RedisStore{client: client, logger: logger}, nil
}

// wrapErr переводит ошибки клиента в ошибки Store.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// CreateWorkflow создаёт запись Workflow, если её ещё нет.
func (s *RedisStore) CreateWorkflow(ctx context.Context, wf *domain.Workflow, ttl time.Duration) error {
	value, err := EncodeWorkflow(wf, 1)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, StateKey(wf.ID), value, ttl).Result()
	if err != nil {
		return wrapErr(err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	wf.Version = 1
	return nil
}

// GetWorkflow возвращает запись Workflow.
func (s *RedisStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	raw, err := s.client.Get(ctx, StateKey(workflowID)).Bytes()
	if err != nil {
		return nil, wrapErr(err)
	}
	return DecodeWorkflow(raw)
}

// SaveWorkflow выполняет CAS-запись Workflow.
func (s *RedisStore) SaveWorkflow(ctx context.Context, wf *domain.Workflow, ttl time.Duration) error {
	next := wf.Version + 1
	value, err := EncodeWorkflow(wf, next)
	if err != nil {
		return err
	}

	res, err := casScript.Run(ctx, s.client,
		[]string{StateKey(wf.ID)},
		wf.Version, value, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return wrapErr(err)
	}
	if res != 1 {
		return ErrVersionConflict
	}
	wf.Version = next
	return nil
}

// PutCheckpoint пишет чекпоинт узла и указатель latest.
func (s *RedisStore) PutCheckpoint(ctx context.Context, cp *domain.Checkpoint, ttl time.Duration) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, CheckpointKey(cp.WorkflowID, cp.Node.String()), body, ttl)
	pipe.Set(ctx, latestCheckpointKey(cp.WorkflowID), body, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

// LatestCheckpoint возвращает последний чекпоинт workflow.
func (s *RedisStore) LatestCheckpoint(ctx context.Context, workflowID string) (*domain.Checkpoint, error) {
	raw, err := s.client.Get(ctx, latestCheckpointKey(workflowID)).Bytes()
	if err != nil {
		return nil, wrapErr(err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// AcquireLock пытается захватить ключ.
func (s *RedisStore) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, string, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, "", wrapErr(err)
	}
	if ok {
		return true, value, nil
	}

	current, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, "", wrapErr(err)
	}
	return false, current, nil
}

// RenewLock продлевает удерживаемый ключ.
func (s *RedisStore) RenewLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := renewScript.Run(ctx, s.client, []string{key}, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, wrapErr(err)
	}
	return res == 1, nil
}

// ReleaseLock освобождает удерживаемый ключ.
func (s *RedisStore) ReleaseLock(ctx context.Context, key, value string) error {
	if _, err := releaseScript.Run(ctx, s.client, []string{key}, value).Int(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// SetCancel пишет tombstone отмены workflow.
func (s *RedisStore) SetCancel(ctx context.Context, workflowID string, ttl time.Duration) error {
	return wrapErr(s.client.Set(ctx, CancelKey(workflowID), "1", ttl).Err())
}

// IsCancelled проверяет наличие tombstone.
func (s *RedisStore) IsCancelled(ctx context.Context, workflowID string) (bool, error) {
	_, err := s.client.Get(ctx, CancelKey(workflowID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, wrapErr(err)
	}
	return true, nil
}

// ReviewAdd добавляет workflow в индекс review:pending.
func (s *RedisStore) ReviewAdd(ctx context.Context, workflowID string, requestedAt time.Time) error {
	err := s.client.ZAdd(ctx, keyReviewPending, redis.Z{
		Score:  float64(requestedAt.UnixMilli()),
		Member: workflowID,
	}).Err()
	return wrapErr(err)
}

// ReviewRemove убирает workflow из индекса.
func (s *RedisStore) ReviewRemove(ctx context.Context, workflowID string) error {
	return wrapErr(s.client.ZRem(ctx, keyReviewPending, workflowID).Err())
}

// ReviewList возвращает страницу индекса по времени запроса.
func (s *RedisStore) ReviewList(ctx context.Context, offset, limit int) ([]string, error) {
	ids, err := s.client.ZRange(ctx, keyReviewPending, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return ids, nil
}

// InFlightAdd регистрирует незавершённый workflow.
func (s *RedisStore) InFlightAdd(ctx context.Context, workflowID string) error {
	return wrapErr(s.client.SAdd(ctx, keyInFlight, workflowID).Err())
}

// InFlightRemove снимает workflow с учёта.
func (s *RedisStore) InFlightRemove(ctx context.Context, workflowID string) error {
	return wrapErr(s.client.SRem(ctx, keyInFlight, workflowID).Err())
}

// InFlightList возвращает все незавершённые workflow.
func (s *RedisStore) InFlightList(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, keyInFlight).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return ids, nil
}

// Publish отправляет сообщение в pub/sub канал.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return wrapErr(s.client.Publish(ctx, channel, payload).Err())
}

// Subscribe подписывается на pub/sub канал.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := s.client.Subscribe(ctx, channel)

	// Дожидаемся подтверждения подписки.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, wrapErr(err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { sub.Close() }
	return out, stop, nil
}

// Close закрывает подключение.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
