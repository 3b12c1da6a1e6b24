// Package domain содержит доменные сущности платформы верификации.
//
// Центральная сущность — Workflow: долгоживущая запись, отслеживающая
// прохождение одного RawItem через фиксированный конвейер проверки.
//
// Состав:
//   - item.go       — RawItem (входные данные от ingestion)
//   - workflow.go   — Workflow, NodeError, Review
//   - status.go     — Status и машина состояний
//   - node.go       — фиксированный набор узлов конвейера
//   - claim.go      — Claim и результаты per-claim обработки
//   - checkpoint.go — Checkpoint для восстановления после сбоя
//   - event.go      — NotificationEvent для Observer Plane
//   - errkind.go    — закрытая таксономия ошибок
package domain
