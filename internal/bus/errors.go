package bus

import (
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки шлюза.
var (
	// ErrBusUnavailable — шина недоступна; retryable с backoff.
	ErrBusUnavailable = errors.New("bus unavailable")

	// ErrSerialization — сообщение не сериализуется/не разбирается;
	// не retryable, маршрутизируется в DLQ.
	ErrSerialization = errors.New("serialization error")

	// ErrAuth — отказ в доступе; фатально для процесса.
	ErrAuth = errors.New("bus auth error")

	// ErrNoChannel — соединение без открытого канала.
	ErrNoChannel = errors.New("no channel available")
)

// Classify переводит низкоуровневую ошибку в класс шлюза.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var jsonSyntax *json.SyntaxError
	var jsonType *json.UnmarshalTypeError
	if errors.As(err, &jsonSyntax) || errors.As(err, &jsonType) {
		return ErrSerialization
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.AccessRefused, amqp.NotAllowed:
			return ErrAuth
		}
	}

	return ErrBusUnavailable
}
