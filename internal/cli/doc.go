// Package cli реализует операторскую утилиту командной строки.
//
// # Обзор
//
// CLI — клиентская утилита для операторской поверхности платформы.
// Работает через HTTP, не импортирует внутренние пакеты оркестрации.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент операторского API. Инкапсулирует запросы, парсинг
// ответов (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	reviews, err := client.ListReviews(0, 20)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr,
// поэтому работает pipe: crisislens review list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - review:   list, claim, decide
//   - workflow: status, cancel
//
// Каждая группа создаётся через фабричную функцию (NewReviewCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
