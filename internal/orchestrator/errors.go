package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrWorkflowNotFound — workflow не найден в State Store.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrNotOwner — owner-lease удерживается другим процессом.
	ErrNotOwner = errors.New("workflow owned by another orchestrator")

	// ErrTerminal — операция над workflow в терминальном статусе.
	ErrTerminal = errors.New("workflow is terminal")

	// ErrNoStage — для узла не подключена стадия.
	ErrNoStage = errors.New("no stage wired for node")
)
