package store

import "fmt"

// Пространства ключей State Store.
const (
	// prefixState — wf:state:{workflow_id} — запись Workflow.
	prefixState = "wf:state:"

	// prefixCheckpoint — wf:ckpt:{workflow_id}:{node} — чекпоинты узлов.
	prefixCheckpoint = "wf:ckpt:"

	// prefixLock — wf:lock:{source_id} — дедуп-токен.
	prefixLock = "wf:lock:"

	// prefixLease — wf:lease:{workflow_id} — owner-lease оркестратора.
	prefixLease = "wf:lease:"

	// prefixCancel — wf:cancel:{workflow_id} — tombstone отмены.
	prefixCancel = "wf:cancel:"

	// keyReviewPending — review:pending — sorted set по requested_at.
	keyReviewPending = "review:pending"

	// keyInFlight — wf:inflight — множество незавершённых workflow.
	keyInFlight = "wf:inflight"
)

// Каналы pub/sub.
const (
	// ChannelEvents — канал NotificationEvent для Observer Plane.
	ChannelEvents = "wf.events"

	// ChannelReviewDecided — сигнал оркестратору о решении оператора.
	ChannelReviewDecided = "review.decided"
)

// StateKey возвращает ключ записи Workflow.
func StateKey(workflowID string) string {
	return prefixState + workflowID
}

// CheckpointKey возвращает ключ чекпоинта узла.
func CheckpointKey(workflowID, node string) string {
	return fmt.Sprintf("%s%s:%s", prefixCheckpoint, workflowID, node)
}

// latestCheckpointKey — указатель на последний чекпоинт workflow.
func latestCheckpointKey(workflowID string) string {
	return fmt.Sprintf("%s%s:latest", prefixCheckpoint, workflowID)
}

// DedupKey возвращает ключ дедуп-токена для source_id.
func DedupKey(sourceID string) string {
	return prefixLock + sourceID
}

// LeaseKey возвращает ключ owner-lease workflow.
func LeaseKey(workflowID string) string {
	return prefixLease + workflowID
}

// CancelKey возвращает ключ tombstone отмены.
func CancelKey(workflowID string) string {
	return prefixCancel + workflowID
}
