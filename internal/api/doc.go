// Package api — операторская поверхность платформы верификации.
//
// Эндпоинты:
//   - GET  /api/v1/workflows/{id}          — снимок Workflow
//   - POST /api/v1/workflows/{id}/cancel   — отмена workflow
//   - GET  /api/v1/reviews                 — листинг review-задач (paged)
//   - POST /api/v1/reviews/{id}/claim      — аренда на решение
//   - POST /api/v1/reviews/{id}/decide     — решение оператора
//   - GET  /api/v1/advisories              — архив предупреждений
//   - GET  /api/v1/advisories/{id}         — предупреждение workflow
//   - GET  /ws                             — Observer Plane (WebSocket)
//
// Поверхность авторитетна над координатором review и оркестратором,
// но не привязана к транспорту: CLI и фронтенды используют её одинаково.
package api
