// Package amqpadapter is an xlog adapter that publishes every record to an
// AMQP 0-9-1 topic exchange.
//
// Each record is published with routing key "<context>.<LEVEL>", six
// headers (context, level, timestamp, loggerName, threadName, message),
// content type text/plain, persistent delivery and priority 0. The body is
// the configured layout's rendering. Consumers bind queues with topic
// patterns such as "orderservice.*" or "*.ERROR".
//
// Publish failures never reach the application: they are passed to the
// ErrorHandler, counted in Stats and forwarded to the MetricsCollector, and
// the record is dropped.
package amqpadapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	xlog "github.com/trickstertwo/xlog-amqp"
)

type state uint32

const (
	stateCreated state = iota
	stateStarted
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateStarted:
		return "started"
	default:
		return "stopped"
	}
}

// err is the drop reason for records logged in state s.
func (s state) err() error {
	switch s {
	case stateCreated:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}
	return nil
}

// core is shared by an Adapter and every child created with With.
type core struct {
	opts Options

	// mu serializes Start, Stop and every use of the session.
	mu        sync.Mutex
	state     atomic.Uint32
	sess      *session
	reconnect *backoff.ExponentialBackOff
	nextDial  time.Time

	// qmu orders enqueues against closing the queue in Stop.
	qmu   sync.RWMutex
	queue chan *envelope
	done  chan struct{}

	minLevel   atomic.Int64
	metrics    atomic.Value // holds MetricsCollector
	measureDur atomic.Bool
	reporting  atomic.Bool
	st         stats
}

// Adapter is the AMQP forwarding appender. Create it with New, then Start it
// (directly or through xlog.Logger.Start) before logging.
type Adapter struct {
	c     *core
	bound []xlog.Field
}

// New creates an appender. It does not connect; options are validated by
// Start.
func New(opts Options) *Adapter {
	opts = opts.withDefaults()
	c := &core{opts: opts, reconnect: opts.newBackoff()}
	c.minLevel.Store(int64(opts.MinLevel))
	c.metrics.Store(MetricsCollector(&NoopMetricsCollector{}))
	if opts.Async {
		c.queue = make(chan *envelope, opts.AsyncQueueSize)
		c.done = make(chan struct{})
	}
	return &Adapter{c: c}
}

// Options returns the effective options, defaults applied.
func (a *Adapter) Options() Options { return a.c.opts }

// SetMetricsCollector installs a collector; when not Noop, publish durations
// are measured too.
func (a *Adapter) SetMetricsCollector(mc MetricsCollector) {
	if mc == nil {
		mc = &NoopMetricsCollector{}
	}
	a.c.metrics.Store(mc)
	_, isNoop := mc.(*NoopMetricsCollector)
	a.c.measureDur.Store(!isNoop)
}

// Stats returns a snapshot of internal counters, shared with With children.
func (a *Adapter) Stats() StatsSnapshot { return a.c.st.snapshot() }

func (a *Adapter) ResetStats() { a.c.st.reset() }

func (a *Adapter) SetMinLevel(l xlog.Level) { a.c.minLevel.Store(int64(l)) }

// Started reports whether the appender holds a usable session state.
func (a *Adapter) Started() bool { return a.c.loadState() == stateStarted }

func (a *Adapter) With(fs []xlog.Field) xlog.Adapter {
	child := &Adapter{c: a.c}
	if n := len(a.bound) + len(fs); n > 0 {
		child.bound = make([]xlog.Field, 0, n)
		child.bound = append(child.bound, a.bound...)
		child.bound = append(child.bound, fs...)
	}
	return child
}

// Start connects, opens a channel and declares the exchange as a durable
// topic exchange. With StartAttempts > 1 it retries with the configured
// backoff; credential and vhost refusals are not retried. On failure the
// error is reported and returned and the appender stays not started, so a
// later Start may try again. Start on a started appender is a no-op; after
// Stop it returns ErrStopped.
func (a *Adapter) Start(ctx context.Context) error {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()

	switch st := c.loadState(); st {
	case stateStarted:
		return nil
	case stateStopped:
		return ErrStopped
	}

	if err := c.opts.Validate(); err != nil {
		c.report(err)
		return err
	}

	sess, err := backoff.Retry(ctx, func() (*session, error) {
		s, err := connect(ctx, &c.opts)
		if err != nil {
			c.st.connectErrors.Add(1)
			if permanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return s, nil
	},
		backoff.WithBackOff(c.opts.newBackoff()),
		backoff.WithMaxTries(uint(c.opts.StartAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.report(fmt.Errorf("amqp: start failed, retrying in %s: %w", next, err))
		}),
	)
	if err != nil {
		err = fmt.Errorf("amqp: start (%s): %w", c.opts, err)
		c.report(err)
		return err
	}

	c.sess = sess
	c.state.Store(uint32(stateStarted))
	c.collector().SessionState(true)
	if c.queue != nil {
		go c.run()
	}
	return nil
}

// Stop drains the async queue (bounded by ctx), then closes the channel and
// the connection, ignoring their errors. It is safe before Start, after a
// failed Start and when called repeatedly, and it always returns nil.
func (a *Adapter) Stop(ctx context.Context) error {
	c := a.c

	c.qmu.Lock()
	c.mu.Lock()
	prev := c.loadState()
	c.state.Store(uint32(stateStopped))
	c.mu.Unlock()
	drain := prev == stateStarted && c.queue != nil
	if drain {
		close(c.queue)
	}
	c.qmu.Unlock()

	if drain {
		select {
		case <-c.done:
		case <-ctx.Done():
			c.report(fmt.Errorf("amqp: stop before queue drained: %w", ctx.Err()))
		}
	}

	c.mu.Lock()
	c.dropSessionLocked()
	c.mu.Unlock()
	return nil
}

// Log publishes r. It never returns an error and never panics on broker
// failures; see ErrorHandler.
func (a *Adapter) Log(r *xlog.Record) {
	c := a.c
	if int64(r.Level) < c.minLevel.Load() {
		return
	}
	if st := c.loadState(); st != stateStarted {
		c.drop(RoutingKey(r.Context, r.Level), r.Level, st.err())
		return
	}

	if len(a.bound) > 0 {
		merged := *r
		merged.Fields = make([]xlog.Field, 0, len(a.bound)+len(r.Fields))
		merged.Fields = append(merged.Fields, a.bound...)
		merged.Fields = append(merged.Fields, r.Fields...)
		r = &merged
	}
	env := newEnvelope(r, c.opts.Layout)

	if c.queue != nil {
		c.enqueue(env)
		return
	}
	c.publish(env)
}

func (c *core) loadState() state { return state(c.state.Load()) }

func (c *core) collector() MetricsCollector { return c.metrics.Load().(MetricsCollector) }

// report hands err to the ErrorHandler. A handler that logs back into this
// appender can fail again; failures raised while a call is running are
// counted instead of delivered, which bounds that recursion.
func (c *core) report(err error) {
	if !c.reporting.CompareAndSwap(false, true) {
		c.st.unreported.Add(1)
		return
	}
	defer c.reporting.Store(false)
	c.opts.ErrorHandler(err)
}

func (c *core) drop(key string, level xlog.Level, err error) {
	c.st.dropped.Add(1)
	c.collector().Dropped(level)
	c.report(&PublishError{RoutingKey: key, Err: err})
}

// rejected is a record that was not published, with the reason.
type rejected struct {
	env *envelope
	err error
}

func (c *core) dropAll(rs []rejected) {
	for _, r := range rs {
		c.drop(r.env.key, r.env.level, r.err)
	}
}

func (c *core) enqueue(env *envelope) {
	c.qmu.RLock()
	rs := c.enqueueLocked(env)
	c.qmu.RUnlock()
	c.dropAll(rs)
}

// enqueueLocked runs under qmu's read lock and returns the records it could
// not queue; the caller drops them once the lock is released.
func (c *core) enqueueLocked(env *envelope) []rejected {
	if st := c.loadState(); st != stateStarted {
		return []rejected{{env, st.err()}}
	}
	select {
	case c.queue <- env:
		return nil
	default:
	}

	switch c.opts.AsyncPolicy {
	case Block:
		// The publisher itself may be running the ErrorHandler, so a
		// handler that logs must not wait for it.
		if c.reporting.Load() {
			return []rejected{{env, ErrQueueFull}}
		}
		c.queue <- env
		return nil
	case DropOldest:
		var rs []rejected
		select {
		case old := <-c.queue:
			rs = append(rs, rejected{old, ErrQueueFull})
		default:
		}
		select {
		case c.queue <- env:
		default:
			rs = append(rs, rejected{env, ErrQueueFull})
		}
		return rs
	default:
		return []rejected{{env, ErrQueueFull}}
	}
}

// run is the async publisher. It exits once Stop has closed the queue and
// every queued record was handled.
func (c *core) run() {
	defer close(c.done)
	for env := range c.queue {
		c.publish(env)
	}
}

// publish sends env on the session and drops it on failure. The drop, and
// with it the ErrorHandler, runs after mu is released.
func (c *core) publish(env *envelope) {
	c.mu.Lock()
	err := c.publishLocked(env)
	c.mu.Unlock()
	if err != nil {
		c.drop(env.key, env.level, err)
	}
}

func (c *core) publishLocked(env *envelope) error {
	sess, err := c.sessionLocked()
	if err != nil {
		return err
	}

	ctx, cancel := c.publishContext()
	defer cancel()

	mc := c.collector()
	measure := c.measureDur.Load()
	var start time.Time
	if measure {
		start = time.Now()
	}

	err = sess.ch.Publish(ctx, c.opts.ExchangeName, env.key, env.msg)

	var durMS float64
	if measure {
		durMS = float64(time.Since(start)) / float64(time.Millisecond)
	}
	if err != nil {
		c.st.publishErrors.Add(1)
		c.dropSessionLocked()
		mc.LoggedMessage(env.level, durMS, len(env.msg.Body), err)
		return err
	}
	c.st.published.Add(1)
	mc.LoggedMessage(env.level, durMS, len(env.msg.Body), nil)
	return nil
}

func (c *core) publishContext() (context.Context, context.CancelFunc) {
	if c.opts.PublishTimeout < 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.opts.PublishTimeout)
}

// sessionLocked returns the open session, redialing when it was lost and
// the reconnect backoff allows another attempt.
func (c *core) sessionLocked() (*session, error) {
	if c.sess != nil {
		if c.sess.alive() {
			return c.sess, nil
		}
		c.dropSessionLocked()
	}
	if st := c.loadState(); st != stateStarted {
		return nil, st.err()
	}
	if c.opts.DisableReconnect {
		return nil, ErrSessionLost
	}

	now := c.opts.Clock.Now()
	if now.Before(c.nextDial) {
		return nil, ErrReconnectPending
	}

	sess, err := connect(context.Background(), &c.opts)
	if err != nil {
		c.st.connectErrors.Add(1)
		c.nextDial = now.Add(c.reconnect.NextBackOff())
		return nil, fmt.Errorf("amqp: reconnect: %w", err)
	}

	c.reconnect.Reset()
	c.nextDial = time.Time{}
	c.sess = sess
	c.st.reconnects.Add(1)
	c.collector().SessionState(true)
	return sess, nil
}

func (c *core) dropSessionLocked() {
	if c.sess == nil {
		return
	}
	c.sess.close()
	c.sess = nil
	c.collector().SessionState(false)
}
