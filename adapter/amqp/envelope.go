package amqpadapter

import (
	amqp "github.com/rabbitmq/amqp091-go"

	xlog "github.com/trickstertwo/xlog-amqp"
	"github.com/trickstertwo/xlog-amqp/layout"
)

// Header keys attached to every published record.
const (
	HeaderContext    = "context"
	HeaderLevel      = "level"
	HeaderTimestamp  = "timestamp"
	HeaderLoggerName = "loggerName"
	HeaderThreadName = "threadName"
	HeaderMessage    = "message"
)

const ContentType = "text/plain"

// envelope is one record ready to publish. It owns its body and headers so
// it can cross to the async publisher.
type envelope struct {
	level xlog.Level
	key   string
	msg   amqp.Publishing
}

// RoutingKey is "<context>.<LEVEL>", e.g. "billing.ERROR".
func RoutingKey(context string, level xlog.Level) string {
	if context == "" {
		context = xlog.DefaultContext
	}
	return context + "." + level.String()
}

// Headers returns the header table for r. The message header carries the
// raw template, not the rendered text.
func Headers(r *xlog.Record) amqp.Table {
	context := r.Context
	if context == "" {
		context = xlog.DefaultContext
	}
	return amqp.Table{
		HeaderContext:    context,
		HeaderLevel:      r.Level.String(),
		HeaderTimestamp:  r.At.UnixMilli(),
		HeaderLoggerName: r.Logger,
		HeaderThreadName: r.Thread,
		HeaderMessage:    r.Template,
	}
}

func newEnvelope(r *xlog.Record, l layout.Layout) *envelope {
	return &envelope{
		level: r.Level,
		key:   RoutingKey(r.Context, r.Level),
		msg: amqp.Publishing{
			Headers:      Headers(r),
			ContentType:  ContentType,
			DeliveryMode: amqp.Persistent,
			Priority:     0,
			Body:         l.Format(r),
		},
	}
}
