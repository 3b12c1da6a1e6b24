package domain

import "time"

// Checkpoint — долговечная запись о завершении узла.
//
// Пишется синхронно ДО того, как переход состояния анонсируется наружу
// (публикация downstream, ack входного сообщения). Достаточен для
// возобновления со СЛЕДУЮЩЕГО узла после рестарта процесса.
type Checkpoint struct {
	// WorkflowID — ссылка на workflow.
	WorkflowID string `json:"workflow_id"`

	// Node — узел, завершение которого фиксируется.
	Node Node `json:"node"`

	// Attempt — номер попытки, на которой узел завершился.
	Attempt int `json:"attempt"`

	// Snapshot — сериализованное состояние Workflow на момент завершения узла.
	Snapshot []byte `json:"snapshot"`

	// CreatedAt — время записи чекпоинта.
	CreatedAt time.Time `json:"created_at"`
}
