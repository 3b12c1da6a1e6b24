// Package stages содержит реализации стадий конвейера верификации.
//
// # Контракт
//
// Стадия — чистая функция (input_state) → (output_fragment) | error.
// Единообразные таймауты, повторы и классификация ошибок добавляются
// поверх стадии в internal/runtime; стадия обязана переживать повторный
// вызов с тем же входом после сбоя (идемпотентность или запись за CAS).
//
// Стадии основного конвейера реализуют Stage, per-claim стадии — ClaimStage.
//
// # Коллаборации
//
// ML-предикаты, fact-check сервисы и перевод — внешние коллаборации
// с единственным методом Apply(input) → output | error. Их внутренности
// вне зоны ответственности платформы; runtime отвечает за таймаут и retry
// вокруг них. HTTPCollaborator — транспорт для настоящих сервисов,
// локальные эвристики служат детерминированным дефолтом.
package stages
