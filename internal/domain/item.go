package domain

import "time"

// RawItem — сырой элемент, произведённый ingestion-агентами.
//
// RawItem неизменяем: оркестратор никогда не мутирует входные данные,
// только читает их. Каждый RawItem порождает ровно один Workflow
// (дедупликация по SourceID).
type RawItem struct {
	// SourceID — стабильный идентификатор элемента у источника.
	// Одинаков при повторных доставках одного и того же элемента.
	SourceID string `json:"source_id"`

	// Source — имя источника ("reddit", "gdelt", "who-ears", ...).
	Source string `json:"source"`

	// Payload — непрозрачное содержимое (текст, ссылки на медиа).
	Payload map[string]any `json:"payload"`

	// IngestedAt — время приёма элемента ingestion-агентом.
	IngestedAt time.Time `json:"ingested_at"`
}

// Validate проверяет минимальные требования к RawItem.
func (it *RawItem) Validate() error {
	if it.SourceID == "" {
		return ErrEmptySourceID
	}
	return nil
}
