package amqpadapter

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// diagLogger is the appender's own logger, independent of xlog.
var diagLogger = sync.OnceValue(func() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("xlog-amqp")
})

func defaultErrorHandler(err error) {
	fs := []zap.Field{zap.Error(err)}
	var pe *PublishError
	if errors.As(err, &pe) {
		fs = append(fs, zap.String("routing_key", pe.RoutingKey))
	}
	diagLogger().Warn("amqp appender", fs...)
}
