package domain

// Claim — проверяемое утверждение, извлечённое из нормализованного текста.
//
// Claims принадлежат родительскому Workflow и уничтожаются вместе с ним.
type Claim struct {
	// ID — идентификатор утверждения в рамках workflow ("c0", "c1", ...).
	ID string `json:"claim_id"`

	// Text — текст утверждения.
	Text string `json:"text"`

	// Span — позиция утверждения в нормализованном тексте [start, end).
	Span [2]int `json:"span"`
}

// ClaimResult — итог per-claim подконвейера для одного утверждения.
//
// Слоты результатов преаллоцируются по порядку извлечения claims,
// поэтому merge детерминирован и не требует синхронизации сверх
// завершения подзадач.
type ClaimResult struct {
	// ClaimID — ссылка на Claim.
	ClaimID string `json:"claim_id"`

	// Topics — темы, назначенные утверждению.
	Topics []string `json:"topics,omitempty"`

	// Evidence — найденные свидетельства (непрозрачные для оркестратора).
	Evidence []map[string]any `json:"evidence,omitempty"`

	// Veracity — оценка достоверности [0,1].
	Veracity float64 `json:"veracity"`

	// Failed — true, если подконвейер этого claim упал.
	// Упавший claim не прерывает workflow, но фиксируется в Errors.
	Failed bool `json:"failed,omitempty"`

	// Error — текст ошибки упавшего подконвейера.
	Error string `json:"error,omitempty"`
}
