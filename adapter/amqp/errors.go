package amqpadapter

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrInvalidOptions   = errors.New("amqp: invalid options")
	ErrNotStarted       = errors.New("amqp: appender not started")
	ErrStopped          = errors.New("amqp: appender stopped")
	ErrQueueFull        = errors.New("amqp: async queue full")
	ErrSessionLost      = errors.New("amqp: broker session lost")
	ErrReconnectPending = errors.New("amqp: reconnect pending")
	ErrNack             = errors.New("amqp: publish not acknowledged")
)

// PublishError is reported for every record that did not reach the broker.
type PublishError struct {
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("amqp: publish %q: %v", e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// permanent reports whether retrying a connect cannot help.
func permanent(err error) bool {
	if errors.Is(err, amqp.ErrCredentials) || errors.Is(err, amqp.ErrVhost) || errors.Is(err, ErrInvalidOptions) {
		return true
	}
	var ae *amqp.Error
	return errors.As(err, &ae) && ae.Code == amqp.AccessRefused
}
