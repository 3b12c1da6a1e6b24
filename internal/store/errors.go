package store

import "errors"

// Ошибки State Store.
var (
	// ErrNotFound — запись отсутствует.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (создание с NX).
	ErrAlreadyExists = errors.New("already exists")

	// ErrVersionConflict — CAS отклонил запись: версия устарела.
	// Вызывающий перечитывает запись и принимает решение заново.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreUnavailable — хранилище недоступно; вызывающий делает backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)
