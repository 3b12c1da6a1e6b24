// Package store предоставляет долговечное хранилище состояния workflow.
//
// Контракт — key-value с TTL, CAS по версии записи и pub/sub каналами:
//   - store.go    — интерфейс Store и кодирование записей
//   - keys.go     — пространства ключей
//   - redis.go    — реализация на Redis
//   - memstore.go — реализация в памяти (для тестов)
//
// Каждый переход статуса Workflow проходит через CAS: значение в
// хранилище начинается с версии записи, скрипт сравнивает её с ожидаемой
// и отклоняет устаревшие записи.
package store
