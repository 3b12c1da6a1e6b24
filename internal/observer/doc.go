// Package observer реализует real-time fan-out переходов состояния
// к внешним подписчикам (Observer Plane).
//
// Модель:
//   - подписчики подключаются по WebSocket и входят в комнаты
//     (workflow:{id}, user:{id} или global)
//   - каждый авторитетный переход состояния публикуется оркестратором
//     в pub/sub канал State Store; хаб пересылает событие подписчикам,
//     чьи комнаты совпадают
//   - доставка at-most-once и НЕ авторитетна: при переподключении
//     подписчик обязан сверяться с State Store
//   - backpressure: ограниченная очередь на подключение; переполнение
//     выталкивает старейшее событие и шлёт маркер lag
//   - heartbeat ping каждые 30 секунд; два пропуска — закрытие
package observer
