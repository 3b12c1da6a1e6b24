// Package pipeline описывает фиксированный DAG конвейера верификации.
//
// Форма конвейера закрыта и не авторизуется пользователем:
//
//	Normalize → EntityExtract → ClaimExtract
//	  → (fan-out per claim: TopicAssign, EvidenceRetrieve, VeracityAssess) → Merge
//	  → RiskScore
//	  → [risk ≥ τ] → AwaitReview ──┐
//	  → [risk < τ]  ───────────────┼→ DraftAdvisory → Translate → Publish → Done
//
// Маршрутизация выражена switch по закрытому набору узлов; узел без
// маршрута попадает в default-ветку, и After возвращает ошибку во время
// выполнения (компилятор такой пропуск не ловит).
package pipeline
