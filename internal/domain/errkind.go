package domain

import (
	"errors"
	"fmt"
)

// ErrorKind — закрытая таксономия ошибок конвейера.
//
// Любая ошибка стадии классифицируется Node Runtime в один из этих видов
// до того, как попадёт в Workflow.Errors или в решение оркестратора.
type ErrorKind string

const (
	// KindRetryable — временная ошибка, runtime повторяет с backoff.
	KindRetryable ErrorKind = "Retryable"

	// KindValidation — некорректные данные, retry бессмыслен.
	KindValidation ErrorKind = "Validation"

	// KindTimeout — превышен дедлайн узла; считается retryable до лимита попыток.
	KindTimeout ErrorKind = "Timeout"

	// KindPermanentUpstream — внешний сервис отказал окончательно.
	KindPermanentUpstream ErrorKind = "PermanentUpstreamFailure"

	// KindCancelled — workflow отменён во время выполнения узла.
	KindCancelled ErrorKind = "Cancelled"

	// KindAllClaimsFailed — все per-claim подконвейеры упали на merge.
	KindAllClaimsFailed ErrorKind = "AllClaimsFailed"

	// KindConsistencyLost — CAS-конфликт не разрешился за N попыток.
	KindConsistencyLost ErrorKind = "ConsistencyLost"

	// KindBusUnavailable — шина недоступна; backoff на уровне Supervisor.
	KindBusUnavailable ErrorKind = "BusUnavailable"

	// KindAuthError — фатальная ошибка аутентификации на шине.
	KindAuthError ErrorKind = "AuthError"
)

// Retryable возвращает true, если ошибка подлежит повтору на уровне узла.
func (k ErrorKind) Retryable() bool {
	return k == KindRetryable || k == KindTimeout
}

// KindError — ошибка стадии с привязанным видом из таксономии.
//
// Стадии возвращают KindError напрямую; всё остальное runtime
// классифицирует в KindRetryable (безопасный дефолт для внешних вызовов).
type KindError struct {
	Kind ErrorKind
	Err  error
}

// Error реализует error.
func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *KindError) Unwrap() error {
	return e.Err
}

// NewKindError создаёт KindError.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// Kindf создаёт KindError с форматированным сообщением.
func Kindf(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ClassifyError возвращает вид ошибки.
// KindError сохраняет свой вид; ErrCancelled — Cancelled; всё остальное,
// включая context-ошибки, — Retryable. Context-ошибки в Timeout/Cancelled
// переводит runtime до вызова этой функции.
func ClassifyError(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, ErrCancelled) {
		return KindCancelled
	}
	return KindRetryable
}

// Общие доменные ошибки.
var (
	// ErrEmptySourceID — RawItem без source_id.
	ErrEmptySourceID = errors.New("raw item has empty source_id")

	// ErrInvalidTransition — недопустимый переход статуса.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCancelled — workflow отменён (обнаружен tombstone).
	ErrCancelled = errors.New("workflow cancelled")

	// ErrTerminal — операция над workflow в терминальном статусе.
	ErrTerminal = errors.New("workflow is terminal")
)
