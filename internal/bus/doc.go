// Package bus предоставляет шлюз к событийной шине на RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — типизированная публикация сообщений
//   - consumer.go   — потребление с ручным ack и учётом попыток
//   - errors.go     — классы ошибок шлюза
//
// Топики (fixed taxonomy):
//   - raw-items     — приём работы, ключ source_id
//   - claims        — вынос per-claim работы, ключ workflow_id
//   - alerts        — высокорисковые уведомления
//   - notifications — пользовательские события
//   - dlq           — ядовитые сообщения
//
// Дисциплина доставки: at-least-once; потребители идемпотентны по
// workflow_id; ack входного сообщения происходит ТОЛЬКО после
// долговечного чекпоинта соответствующего перехода состояния.
package bus
