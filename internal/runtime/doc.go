// Package runtime выполняет одну стадию конвейера с единообразной
// семантикой поверх чистой функции стадии:
//
//   - таймаут: per-node wall-clock дедлайн; превышение — kind=Timeout
//   - retry: экспоненциальный backoff (база 1s, фактор 2, потолок 10s,
//     джиттер ±20%), максимум попыток для Retryable-ошибок
//   - классификация: любая ошибка стадии приводится к закрытой таксономии
//     до того, как её увидит оркестратор
//   - учёт: каждая неудачная попытка попадает в Workflow.Errors и
//     RetryCounts атомарно через CAS на записи Workflow
//   - отмена: tombstone проверяется перед каждой попыткой
//
// Идемпотентность стадии — требование контракта: стадия обязана
// переживать повторный вызов с тем же входом после сбоя.
package runtime
