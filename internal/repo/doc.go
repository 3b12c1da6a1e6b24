// Package repo — архив опубликованных предупреждений в PostgreSQL.
//
// Остальная платформа (API, дашборды) читает предупреждения отсюда;
// State Store хранит только состояние workflow с TTL, архив — без TTL.
// Запись идемпотентна по workflow_id: повтор стадии Publish после сбоя
// перезаписывает ту же строку.
package repo
