package amqpadapter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of an AMQP channel the appender uses.
type Channel interface {
	// ExchangeDeclare declares a non-internal, non-auto-delete exchange.
	ExchangeDeclare(name, kind string, durable bool) error
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of an AMQP connection the appender uses.
type Connection interface {
	Channel(confirm bool) (Channel, error)
	// NotifyClose follows amqp091-go: receiver gets at most one error and is
	// then closed.
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(ctx context.Context, url string, cfg amqp.Config) (Connection, error)

// Dial is the production Dialer on amqp091-go. The TCP dial and the AMQP
// handshake both follow ctx: its deadline replaces cfg's dial timeout and
// cancelling it aborts a handshake in progress.
func Dial(ctx context.Context, url string, cfg amqp.Config) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := DefaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	var (
		mu  sync.Mutex
		raw net.Conn
	)
	cfg.Dial = func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		mu.Lock()
		raw = conn
		mu.Unlock()
		if ctx.Err() != nil {
			_ = conn.SetDeadline(time.Now())
		}
		return conn, nil
	}
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if raw != nil {
			_ = raw.SetDeadline(time.Now())
		}
	})

	conn, err := amqp.DialConfig(url, cfg)
	if !stop() {
		if err == nil {
			_ = conn.Close()
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	if err != nil {
		return nil, err
	}
	return &amqpConn{conn: conn}, nil
}

type amqpConn struct {
	conn *amqp.Connection
}

func (c *amqpConn) Channel(confirm bool) (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if confirm {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("confirm mode: %w", err)
		}
	}
	return &amqpChannel{ch: ch, confirm: confirm}, nil
}

func (c *amqpConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConn) Close() error { return c.conn.Close() }

type amqpChannel struct {
	ch      *amqp.Channel
	confirm bool
}

func (c *amqpChannel) ExchangeDeclare(name, kind string, durable bool) error {
	return c.ch.ExchangeDeclare(name, kind, durable, false, false, false, nil)
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if !c.confirm {
		return c.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
	}
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrNack
	}
	return nil
}

func (c *amqpChannel) Close() error { return c.ch.Close() }
