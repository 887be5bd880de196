package amqpadapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
	Deadline bool
}

// fakeBroker is an in-memory Dialer. Failure knobs are consumed in order.
type fakeBroker struct {
	mu sync.Mutex

	dials       int
	failDials   int   // fail this many upcoming dials
	dialErr     error // error for failed dials; default errRefused
	channelErr  error
	declareErr  error
	failPublish int // fail this many upcoming publishes

	url   string
	cfg   amqp.Config
	conns []*fakeConn

	declared  []string
	published []published
	closes    []string

	// gate, when set, blocks every Publish until it is closed; entered gets
	// a value each time a Publish starts waiting.
	gate    chan struct{}
	entered chan struct{}

	inFlight   atomic.Int32
	overlapped atomic.Bool
}

var errRefused = errors.New("connection refused")

func (b *fakeBroker) dial(_ context.Context, url string, cfg amqp.Config) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	b.url, b.cfg = url, cfg
	if b.failDials > 0 {
		b.failDials--
		if b.dialErr != nil {
			return nil, b.dialErr
		}
		return nil, errRefused
	}
	c := &fakeConn{b: b}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

type fakeConn struct {
	b       *fakeBroker
	closed  bool
	notify  chan *amqp.Error
	chans   []*fakeChannel
	confirm bool
}

func (c *fakeConn) Channel(confirm bool) (Channel, error) {
	if c.b.channelErr != nil {
		return nil, c.b.channelErr
	}
	c.confirm = confirm
	ch := &fakeChannel{b: c.b}
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.notify = receiver
	return receiver
}

func (c *fakeConn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.closes = append(c.b.closes, "connection")
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	return nil
}

// sever simulates the broker dropping the connection.
func (c *fakeConn) sever() {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closed = true
	if c.notify != nil {
		c.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED", Server: true}
		close(c.notify)
		c.notify = nil
	}
}

func (c *fakeConn) isClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

type fakeChannel struct {
	b      *fakeBroker
	closed bool
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.b.declareErr != nil {
		return ch.b.declareErr
	}
	if kind != amqp.ExchangeTopic || !durable {
		return errors.New("unexpected exchange kind/durability")
	}
	ch.b.declared = append(ch.b.declared, name)
	return nil
}

func (ch *fakeChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if ch.b.inFlight.Add(1) > 1 {
		ch.b.overlapped.Store(true)
	}
	defer ch.b.inFlight.Add(-1)

	if ch.b.gate != nil {
		ch.b.entered <- struct{}{}
		<-ch.b.gate
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if ch.b.failPublish > 0 {
		ch.b.failPublish--
		return amqp.ErrClosed
	}
	_, hasDeadline := ctx.Deadline()
	ch.b.published = append(ch.b.published, published{Exchange: exchange, Key: key, Msg: msg, Deadline: hasDeadline})
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.b.closes = append(ch.b.closes, "channel")
	ch.closed = true
	return nil
}

func (ch *fakeChannel) isClosed() bool {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.closed
}

func (b *fakeBroker) closeOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closes...)
}
