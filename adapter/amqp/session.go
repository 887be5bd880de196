package amqpadapter

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// session is the one open connection/channel pair of an appender.
type session struct {
	conn   Connection
	ch     Channel
	closed chan *amqp.Error
}

// alive reports whether the broker has not closed the connection.
func (s *session) alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// close shuts the channel, then the connection. Each step runs regardless of
// the other and failures are ignored.
func (s *session) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}

// connect dials, opens a channel and declares the exchange as a durable
// topic exchange. A failed declare closes what was opened and fails. The
// dial is bounded by DialTimeout as well as ctx.
func connect(ctx context.Context, o *Options) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	conn, err := o.Dialer(ctx, o.URL(), o.amqpConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", o.Host, o.Port, err)
	}
	ch, err := conn.Channel(o.Confirm)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(o.ExchangeName, amqp.ExchangeTopic, true); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", o.ExchangeName, err)
	}
	return &session{
		conn:   conn,
		ch:     ch,
		closed: conn.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}
