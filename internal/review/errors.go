package review

import "errors"

// Ошибки координатора review.
var (
	// ErrNotFound — workflow не найден.
	ErrNotFound = errors.New("workflow not found")

	// ErrNotAwaitingReview — workflow не в статусе AWAITING_REVIEW.
	ErrNotAwaitingReview = errors.New("workflow is not awaiting review")

	// ErrAlreadyClaimed — живую аренду удерживает другой оператор.
	ErrAlreadyClaimed = errors.New("review already claimed")

	// ErrLeaseInvalid — токен аренды не совпадает или аренда истекла.
	ErrLeaseInvalid = errors.New("lease invalid")

	// ErrUnknownDecision — неизвестное решение.
	ErrUnknownDecision = errors.New("unknown decision")
)
