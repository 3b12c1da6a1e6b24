// Package orchestrator управляет прохождением workflow через конвейер.
//
// Orchestrator — «мозг» платформы верификации:
//   - Принимает RawItem из топика raw-items (дедупликация по source_id)
//   - Ведёт workflow по фиксированному DAG через Node Runtime
//   - Пишет чекпоинт после каждого узла ДО анонса перехода наружу
//   - Выполняет per-claim fan-out с ограниченным параллелизмом
//     и детерминированным merge
//   - Паркует высокорисковые workflow на human-review и возобновляет
//     их по сигналу review.decided из State Store pub/sub
//   - Восстанавливает осиротевшие workflow после рестарта процесса
//
// Владение: авторитетно мутирует запись Workflow только оркестратор,
// удерживающий owner-lease; каждая запись идёт через CAS по версии.
package orchestrator
