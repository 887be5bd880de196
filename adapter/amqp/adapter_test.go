package amqpadapter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-cmp/cmp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock/adapter/frozen"

	xlog "github.com/trickstertwo/xlog-amqp"
	"github.com/trickstertwo/xlog-amqp/layout"
)

type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *errSink) count(target error) int {
	n := 0
	for _, err := range s.all() {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

func testOptions(b *fakeBroker, sink *errSink) Options {
	return Options{
		Host:         "mq.example",
		Port:         5673,
		VirtualHost:  "logs",
		Username:     "app",
		Password:     "s3cret",
		ExchangeName: "logs.topic",
		Dialer:       b.dial,
		ErrorHandler: sink.handle,
		MinLevel:     xlog.LevelTrace,
	}
}

func newStarted(t *testing.T, opts Options) *Adapter {
	t.Helper()
	a := New(opts)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func record(context string, level xlog.Level, msg string) *xlog.Record {
	return &xlog.Record{
		At:       time.UnixMilli(1700000000000).UTC(),
		Level:    level,
		Context:  context,
		Logger:   "com.example.Svc",
		Thread:   "main",
		Template: msg,
		Message:  msg,
	}
}

func messageLayout() layout.Layout {
	return layout.Func(func(r *xlog.Record) []byte { return []byte(r.Message) })
}

func bodies(ms []published) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m.Msg.Body)
	}
	return out
}

func TestStartStop_WithoutPublishing(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := New(testOptions(b, sink))

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Started())
	assert.Equal(t, []string{"logs.topic"}, b.declared)

	require.NoError(t, a.Stop(context.Background()))
	assert.False(t, a.Started())
	assert.Equal(t, []string{"channel", "connection"}, b.closeOrder())
	assert.Empty(t, b.messages())
	assert.Empty(t, sink.all())
}

func TestStart_DialParameters(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.ConnectionName = "xlog-amqp/billing"
	newStarted(t, opts)

	uri, err := amqp.ParseURI(b.url)
	require.NoError(t, err)
	assert.Equal(t, "amqp", uri.Scheme)
	assert.Equal(t, "mq.example", uri.Host)
	assert.Equal(t, 5673, uri.Port)
	assert.Equal(t, "app", uri.Username)
	assert.Equal(t, "s3cret", uri.Password)
	assert.Equal(t, "logs", uri.Vhost)

	assert.Equal(t, "logs", b.cfg.Vhost)
	assert.Equal(t, DefaultHeartbeat, b.cfg.Heartbeat)
	assert.Equal(t, "xlog-amqp/billing", b.cfg.Properties["connection_name"])
	assert.NotNil(t, b.cfg.Dial)
	assert.False(t, b.lastConn().confirm)
}

func TestStart_Idempotent(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, 1, b.dialCount())
}

func TestStart_InvalidOptions(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := New(Options{Port: 70000, Dialer: b.dial, ErrorHandler: sink.handle})

	err := a.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidOptions)
	for _, want := range []string{
		"host is empty",
		"port 70000 out of range",
		"virtual host is empty",
		"username is empty",
		"password is empty",
		"exchange name is empty",
	} {
		assert.ErrorContains(t, err, want)
	}
	assert.Zero(t, b.dialCount())
	assert.Equal(t, 1, sink.count(ErrInvalidOptions))
	assert.False(t, a.Started())
}

func TestStart_FailureIsReportedAndStopIsSafe(t *testing.T) {
	b, sink := &fakeBroker{failDials: 1}, &errSink{}
	a := New(testOptions(b, sink))

	err := a.Start(context.Background())
	require.ErrorIs(t, err, errRefused)
	assert.Contains(t, err.Error(), "host: mq.example")
	assert.NotContains(t, err.Error(), "s3cret")
	assert.Equal(t, 1, sink.count(errRefused))
	assert.False(t, a.Started())
	assert.Equal(t, uint64(1), a.Stats().ConnectErrors)

	assert.NotPanics(t, func() { a.Log(record("svc", xlog.LevelInfo, "dropped")) })
	assert.Equal(t, 1, sink.count(ErrNotStarted))

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	assert.Empty(t, b.closeOrder())

	require.ErrorIs(t, a.Start(context.Background()), ErrStopped)
}

func TestStart_RetryAfterFailure(t *testing.T) {
	b, sink := &fakeBroker{failDials: 1}, &errSink{}
	a := New(testOptions(b, sink))

	require.Error(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Started())
	require.NoError(t, a.Stop(context.Background()))
}

func TestStart_DeclareFailureFailsStart(t *testing.T) {
	b, sink := &fakeBroker{declareErr: &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg 'type'"}}, &errSink{}
	a := New(testOptions(b, sink))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, `declare exchange "logs.topic"`)
	assert.False(t, a.Started())

	conn := b.lastConn()
	require.NotNil(t, conn)
	assert.True(t, conn.isClosed())
	assert.True(t, conn.chans[0].isClosed())
	assert.Equal(t, []string{"channel", "connection"}, b.closeOrder())
}

func TestStart_RetriesWithBackoff(t *testing.T) {
	b, sink := &fakeBroker{failDials: 2}, &errSink{}
	opts := testOptions(b, sink)
	opts.StartAttempts = 3
	opts.Backoff = &backoff.ExponentialBackOff{InitialInterval: time.Millisecond, Multiplier: 1.5, MaxInterval: 5 * time.Millisecond}

	newStarted(t, opts)
	assert.Equal(t, 3, b.dialCount())
	assert.Equal(t, 2, sink.count(errRefused))
}

func TestStart_CredentialsAreNotRetried(t *testing.T) {
	b, sink := &fakeBroker{failDials: 5, dialErr: amqp.ErrCredentials}, &errSink{}
	opts := testOptions(b, sink)
	opts.StartAttempts = 5
	opts.Backoff = &backoff.ExponentialBackOff{InitialInterval: time.Millisecond, Multiplier: 1.5, MaxInterval: 5 * time.Millisecond}
	a := New(opts)

	err := a.Start(context.Background())
	require.ErrorIs(t, err, amqp.ErrCredentials)
	assert.Equal(t, 1, b.dialCount())
}

func TestStart_CanceledContext(t *testing.T) {
	b, sink := &fakeBroker{failDials: 5}, &errSink{}
	opts := testOptions(b, sink)
	opts.StartAttempts = 5
	a := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Start(ctx), context.Canceled)
	assert.False(t, a.Started())
}

func TestLog_RoutingKeyAndHeaders(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))

	r := record("svcA", xlog.LevelWarn, "disk at %d%%")
	r.Message = "disk at 91%"
	a.Log(r)

	ms := b.messages()
	require.Len(t, ms, 1)
	m := ms[0]
	assert.Equal(t, "logs.topic", m.Exchange)
	assert.Equal(t, "svcA.WARN", m.Key)
	assert.Equal(t, "text/plain", m.Msg.ContentType)
	assert.Equal(t, amqp.Persistent, m.Msg.DeliveryMode)
	assert.Equal(t, uint8(0), m.Msg.Priority)

	want := amqp.Table{
		"context":    "svcA",
		"level":      "WARN",
		"timestamp":  int64(1700000000000),
		"loggerName": "com.example.Svc",
		"threadName": "main",
		"message":    "disk at %d%%",
	}
	if diff := cmp.Diff(want, m.Msg.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	assert.IsType(t, int64(0), m.Msg.Headers["timestamp"])
	assert.NoError(t, m.Msg.Headers.Validate())
	assert.Equal(t, uint64(1), a.Stats().Published)
}

func TestLog_LevelTokens(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))

	levels := []xlog.Level{xlog.LevelTrace, xlog.LevelDebug, xlog.LevelInfo, xlog.LevelWarn, xlog.LevelError, xlog.LevelFatal}
	for _, l := range levels {
		a.Log(record("svc", l, "x"))
	}
	a.Log(record("", xlog.LevelInfo, "no context"))

	var keys []string
	for _, m := range b.messages() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"svc.TRACE", "svc.DEBUG", "svc.INFO", "svc.WARN", "svc.ERROR", "svc.FATAL", "default.INFO"}, keys)
}

func TestLog_BodyIsLayoutOutput(t *testing.T) {
	r := record("svc", xlog.LevelError, "boom")
	custom := layout.MustPattern("%level|%msg")

	b1, b2, sink := &fakeBroker{}, &fakeBroker{}, &errSink{}
	o1 := testOptions(b1, sink)
	o2 := testOptions(b2, sink)
	o2.Layout = custom
	newStarted(t, o1).Log(r)
	newStarted(t, o2).Log(r)

	m1, m2 := b1.messages()[0], b2.messages()[0]
	assert.Equal(t, layout.Default().Format(r), m1.Msg.Body)
	assert.Equal(t, "ERROR|boom", string(m2.Msg.Body))
	assert.Equal(t, m1.Key, m2.Key)
	if diff := cmp.Diff(m1.Msg.Headers, m2.Msg.Headers); diff != "" {
		t.Fatalf("headers changed with layout:\n%s", diff)
	}
	assert.Equal(t, m1.Msg.ContentType, m2.Msg.ContentType)
}

func TestLog_BoundFieldsReachLayoutOnly(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.Layout = layout.MustPattern("%msg %fields")
	a := newStarted(t, opts)

	child := a.With([]xlog.Field{xlog.Str("svc", "api")})
	r := record("svc", xlog.LevelInfo, "ok")
	r.Fields = []xlog.Field{xlog.Str("path", "/x")}
	child.Log(r)

	ms := b.messages()
	require.Len(t, ms, 1)
	assert.Equal(t, "ok svc=api path=/x", string(ms[0].Msg.Body))
	assert.Len(t, ms[0].Msg.Headers, 6)
	assert.Len(t, r.Fields, 1, "record must not be mutated")
}

func TestLog_MinLevel(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))
	a.SetMinLevel(xlog.LevelWarn)

	a.Log(record("svc", xlog.LevelInfo, "quiet"))
	a.Log(record("svc", xlog.LevelWarn, "loud"))

	ms := b.messages()
	require.Len(t, ms, 1)
	assert.Equal(t, "svc.WARN", ms[0].Key)
	assert.Empty(t, sink.all())
}

func TestLog_PublishErrorIsSwallowedAndSessionReopened(t *testing.T) {
	b, sink := &fakeBroker{failPublish: 1}, &errSink{}
	opts := testOptions(b, sink)
	opts.Layout = messageLayout()
	a := newStarted(t, opts)

	assert.NotPanics(t, func() { a.Log(record("svc", xlog.LevelError, "lost")) })
	errs := sink.all()
	require.Len(t, errs, 1)
	var pe *PublishError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, "svc.ERROR", pe.RoutingKey)
	assert.ErrorIs(t, errs[0], amqp.ErrClosed)
	assert.True(t, b.conns[0].isClosed())

	a.Log(record("svc", xlog.LevelError, "delivered"))
	assert.Equal(t, []string{"delivered"}, bodies(b.messages()))
	assert.Equal(t, 2, b.dialCount())

	st := a.Stats()
	assert.Equal(t, StatsSnapshot{Published: 1, Dropped: 1, PublishErrors: 1, Reconnects: 1}, st)
}

func TestLog_ReconnectDisabledKeepsDropping(t *testing.T) {
	b, sink := &fakeBroker{failPublish: 1}, &errSink{}
	opts := testOptions(b, sink)
	opts.DisableReconnect = true
	a := newStarted(t, opts)

	a.Log(record("svc", xlog.LevelInfo, "first"))
	a.Log(record("svc", xlog.LevelInfo, "second"))
	a.Log(record("svc", xlog.LevelInfo, "third"))

	assert.Empty(t, b.messages())
	assert.Equal(t, 1, b.dialCount())
	assert.Equal(t, 2, sink.count(ErrSessionLost))
	assert.Equal(t, uint64(3), a.Stats().Dropped)
}

func TestLog_SeveredConnectionIsRedialed(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))

	b.lastConn().sever()
	a.Log(record("svc", xlog.LevelInfo, "after drop"))

	assert.Len(t, b.messages(), 1)
	assert.Equal(t, 2, b.dialCount())
	assert.Equal(t, uint64(1), a.Stats().Reconnects)
	assert.Empty(t, sink.all())
}

func TestLog_ReconnectIsGatedByBackoff(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.Backoff = &backoff.ExponentialBackOff{InitialInterval: time.Hour, Multiplier: 2, MaxInterval: 2 * time.Hour}
	opts.Clock = frozen.New(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	a := newStarted(t, opts)

	b.lastConn().sever()
	b.mu.Lock()
	b.failDials = 1
	b.mu.Unlock()

	a.Log(record("svc", xlog.LevelInfo, "redial fails"))
	a.Log(record("svc", xlog.LevelInfo, "waits for backoff"))

	assert.Equal(t, 2, b.dialCount())
	assert.Equal(t, 1, sink.count(errRefused))
	assert.Equal(t, 1, sink.count(ErrReconnectPending))
	assert.Empty(t, b.messages())
}

func TestLog_ReconnectRetriesWhenBackoffElapsed(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.Backoff = &backoff.ExponentialBackOff{Multiplier: 1.5, MaxInterval: time.Second}
	a := newStarted(t, opts)

	b.lastConn().sever()
	b.mu.Lock()
	b.failDials = 1
	b.mu.Unlock()

	a.Log(record("svc", xlog.LevelInfo, "redial fails"))
	a.Log(record("svc", xlog.LevelInfo, "redial works"))

	assert.Equal(t, 3, b.dialCount())
	assert.Len(t, b.messages(), 1)
}

func TestLog_AfterStopIsDropped(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := New(testOptions(b, sink))
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	a.Log(record("svc", xlog.LevelInfo, "late"))
	assert.Empty(t, b.messages())
	assert.Equal(t, 1, sink.count(ErrStopped))
	assert.Equal(t, 1, b.dialCount())
}

func TestLog_PublishTimeout(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	newStarted(t, testOptions(b, sink)).Log(record("svc", xlog.LevelInfo, "bounded"))

	b2 := &fakeBroker{}
	opts := testOptions(b2, sink)
	opts.PublishTimeout = -1
	newStarted(t, opts).Log(record("svc", xlog.LevelInfo, "unbounded"))

	assert.True(t, b.messages()[0].Deadline)
	assert.False(t, b2.messages()[0].Deadline)
}

func TestLog_ConfirmMode(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.Confirm = true
	newStarted(t, opts)
	assert.True(t, b.lastConn().confirm)
}

func TestLog_ConcurrentCallersAreSerialized(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := newStarted(t, testOptions(b, sink))
	logger, err := xlog.NewBuilder().WithAdapter(a).WithContext("svc").WithMinLevel(xlog.LevelInfo).Build()
	require.NoError(t, err)

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			l := logger.Thread(fmt.Sprintf("worker-%d", w))
			for i := 0; i < perWorker; i++ {
				l.Info().Int("i", i).Msgf("message %d from %d", i, w)
			}
		}(w)
	}
	wg.Wait()

	ms := b.messages()
	require.Len(t, ms, workers*perWorker)
	assert.False(t, b.overlapped.Load(), "publishes overlapped on the shared channel")
	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		assert.Equal(t, "svc.INFO", m.Key)
		assert.Len(t, m.Msg.Headers, 6)
		assert.Equal(t, "message %d from %d", m.Msg.Headers["message"])
		seen[string(m.Msg.Body)] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Empty(t, sink.all())
}

func TestBillingScenario_EndToEnd(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	a := New(testOptions(b, sink))

	logger, err := xlog.NewBuilder().
		WithAdapter(a).
		WithContext("billing").
		WithClock(frozen.New(time.UnixMilli(1700000000000).UTC())).
		Build()
	require.NoError(t, err)
	require.NoError(t, logger.Start(context.Background()))

	billing := logger.Named("com.example.Billing").Thread("pool-2")
	billing.Error().Msg("payment failed")
	billing.Error().Msgf("payment %s failed", "p-17")
	require.NoError(t, logger.Stop(context.Background()))

	ms := b.messages()
	require.Len(t, ms, 2)

	plain := ms[0]
	assert.Equal(t, "billing.ERROR", plain.Key)
	assert.Equal(t, "payment failed", plain.Msg.Headers["message"])
	assert.Equal(t, "2023-11-14 22:13:20.000 [pool-2] ERROR com.example.Billing - payment failed\n", string(plain.Msg.Body))

	m := ms[1]
	assert.Equal(t, "logs.topic", m.Exchange)
	assert.Equal(t, "billing.ERROR", m.Key)
	want := amqp.Table{
		"context":    "billing",
		"level":      "ERROR",
		"timestamp":  int64(1700000000000),
		"loggerName": "com.example.Billing",
		"threadName": "pool-2",
		"message":    "payment %s failed",
	}
	if diff := cmp.Diff(want, m.Msg.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "2023-11-14 22:13:20.000 [pool-2] ERROR com.example.Billing - payment p-17 failed\n", string(m.Msg.Body))
	assert.Equal(t, "text/plain", m.Msg.ContentType)
	assert.Equal(t, uint8(2), m.Msg.DeliveryMode)
	assert.Empty(t, sink.all())
}

func TestAsync_DrainsOnStop(t *testing.T) {
	b, sink := &fakeBroker{}, &errSink{}
	opts := testOptions(b, sink)
	opts.Async = true
	opts.Layout = messageLayout()
	a := New(opts)
	require.NoError(t, a.Start(context.Background()))

	for i := 0; i < 10; i++ {
		a.Log(record("svc", xlog.LevelInfo, fmt.Sprint(i)))
	}
	require.NoError(t, a.Stop(context.Background()))

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, bodies(b.messages()))
	assert.Equal(t, []string{"channel", "connection"}, b.closeOrder())

	a.Log(record("svc", xlog.LevelInfo, "late"))
	assert.Equal(t, 1, sink.count(ErrStopped))
}

func TestAsync_FullQueuePolicies(t *testing.T) {
	cases := []struct {
		policy AsyncDropPolicy
		want   []string
	}{
		{DropNewest, []string{"a", "b"}},
		{DropOldest, []string{"a", "c"}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.policy), func(t *testing.T) {
			b := &fakeBroker{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
			sink := &errSink{}
			opts := testOptions(b, sink)
			opts.Async = true
			opts.AsyncQueueSize = 1
			opts.AsyncPolicy = tc.policy
			opts.Layout = messageLayout()
			a := New(opts)
			require.NoError(t, a.Start(context.Background()))

			a.Log(record("svc", xlog.LevelInfo, "a"))
			<-b.entered // the publisher holds "a"
			a.Log(record("svc", xlog.LevelInfo, "b"))
			a.Log(record("svc", xlog.LevelInfo, "c"))

			close(b.gate)
			require.NoError(t, a.Stop(context.Background()))

			assert.Equal(t, tc.want, bodies(b.messages()))
			assert.Equal(t, 1, sink.count(ErrQueueFull))
			assert.Equal(t, uint64(1), a.Stats().Dropped)
		})
	}
}

func TestAsync_BlockPolicyWaitsForRoom(t *testing.T) {
	b := &fakeBroker{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	sink := &errSink{}
	opts := testOptions(b, sink)
	opts.Async = true
	opts.AsyncQueueSize = 1
	opts.AsyncPolicy = Block
	opts.Layout = messageLayout()
	a := New(opts)
	require.NoError(t, a.Start(context.Background()))

	a.Log(record("svc", xlog.LevelInfo, "a"))
	<-b.entered
	a.Log(record("svc", xlog.LevelInfo, "b"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Log(record("svc", xlog.LevelInfo, "c"))
	}()
	select {
	case <-done:
		t.Fatal("blocking enqueue returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	close(b.gate)
	<-done
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, bodies(b.messages()))
	assert.Empty(t, sink.all())
}

// finishes runs fn and fails the test if it does not return within a second.
func finishes(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func TestErrorHandler_LogsBackIntoSameLogger(t *testing.T) {
	b := &fakeBroker{failPublish: 1}
	opts := testOptions(b, nil)
	opts.Layout = messageLayout()

	var (
		logger *xlog.Logger
		calls  int
	)
	opts.ErrorHandler = func(err error) {
		calls++
		logger.Warn().Err(err).Msg("amqp appender dropped a record")
	}
	a := newStarted(t, opts)
	logger, err := xlog.NewBuilder().WithAdapter(a).WithContext("svc").Build()
	require.NoError(t, err)

	finishes(t, "Log", func() { logger.Error().Msg("boom") })

	ms := b.messages()
	require.Len(t, ms, 1)
	assert.Equal(t, "svc.WARN", ms[0].Key)
	assert.Equal(t, "amqp appender dropped a record", string(ms[0].Msg.Body))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatsSnapshot{Published: 1, Dropped: 1, PublishErrors: 1, Reconnects: 1}, a.Stats())
}

func TestErrorHandler_FailingAgainDoesNotRecurse(t *testing.T) {
	b := &fakeBroker{failPublish: 1}
	opts := testOptions(b, nil)
	opts.DisableReconnect = true

	var (
		logger *xlog.Logger
		calls  int
	)
	opts.ErrorHandler = func(err error) {
		calls++
		logger.Warn().Err(err).Msg("amqp appender dropped a record")
	}
	a := newStarted(t, opts)
	logger, err := xlog.NewBuilder().WithAdapter(a).WithContext("svc").Build()
	require.NoError(t, err)

	finishes(t, "Log", func() { logger.Error().Msg("boom") })

	assert.Empty(t, b.messages())
	assert.Equal(t, 1, calls)
	st := a.Stats()
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, uint64(1), st.Unreported)
}

func TestErrorHandler_LogsBackFromAsyncPublisher(t *testing.T) {
	b := &fakeBroker{failPublish: 1}
	opts := testOptions(b, nil)
	opts.Async = true
	opts.AsyncQueueSize = 1
	opts.AsyncPolicy = Block
	opts.Layout = messageLayout()

	var logger *xlog.Logger
	handled := make(chan struct{})
	opts.ErrorHandler = func(error) {
		defer close(handled)
		// The first fills the queue; the second would wait on the
		// publisher that is running this handler.
		logger.Warn().Msg("first")
		logger.Warn().Msg("second")
	}
	a := New(opts)
	logger, err := xlog.NewBuilder().WithAdapter(a).WithContext("svc").Build()
	require.NoError(t, err)
	require.NoError(t, logger.Start(context.Background()))

	logger.Error().Msg("boom")
	finishes(t, "ErrorHandler", func() { <-handled })
	finishes(t, "Stop", func() { _ = logger.Stop(context.Background()) })

	assert.Equal(t, []string{"first"}, bodies(b.messages()))
	st := a.Stats()
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, uint64(1), st.Unreported)
}

func TestStop_WaitsForInFlightPublish(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async=%t", async), func(t *testing.T) {
			b := &fakeBroker{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
			sink := &errSink{}
			opts := testOptions(b, sink)
			opts.Async = async
			opts.Layout = messageLayout()
			a := New(opts)
			require.NoError(t, a.Start(context.Background()))

			logged := make(chan struct{})
			go func() {
				defer close(logged)
				a.Log(record("svc", xlog.LevelInfo, "in flight"))
			}()
			<-b.entered

			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				_ = a.Stop(context.Background())
			}()
			select {
			case <-stopped:
				t.Fatal("Stop returned while a publish was in flight")
			case <-time.After(20 * time.Millisecond):
			}
			assert.Empty(t, b.closeOrder())

			close(b.gate)
			<-logged
			<-stopped

			assert.Equal(t, []string{"in flight"}, bodies(b.messages()))
			assert.Equal(t, []string{"channel", "connection"}, b.closeOrder())
			assert.Empty(t, sink.all())

			a.Log(record("svc", xlog.LevelInfo, "late"))
			assert.Equal(t, 1, sink.count(ErrStopped))
			assert.Len(t, b.messages(), 1)
		})
	}
}

type recordingCollector struct {
	mu       sync.Mutex
	ok, errs int
	dropped  int
	states   []bool
	sizes    []int
}

func (c *recordingCollector) LoggedMessage(_ xlog.Level, durMS float64, size int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs++
	} else {
		c.ok++
	}
	c.sizes = append(c.sizes, size)
}

func (c *recordingCollector) Dropped(xlog.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

func (c *recordingCollector) SessionState(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, up)
}

func TestMetricsCollector(t *testing.T) {
	b, sink := &fakeBroker{failPublish: 1}, &errSink{}
	opts := testOptions(b, sink)
	opts.Layout = messageLayout()
	a := New(opts)
	mc := &recordingCollector{}
	a.SetMetricsCollector(mc)

	a.Log(record("svc", xlog.LevelInfo, "not started"))
	require.NoError(t, a.Start(context.Background()))
	a.Log(record("svc", xlog.LevelInfo, "fails"))
	a.Log(record("svc", xlog.LevelInfo, "works"))
	require.NoError(t, a.Stop(context.Background()))

	assert.Equal(t, 1, mc.ok)
	assert.Equal(t, 1, mc.errs)
	assert.Equal(t, 2, mc.dropped)
	assert.Equal(t, []int{5, 5}, mc.sizes)
	assert.Equal(t, []bool{true, false, true, false}, mc.states)

	a.ResetStats()
	assert.Equal(t, StatsSnapshot{}, a.Stats())
}

func TestOptions_StringAndURL(t *testing.T) {
	o := Options{Host: "mq", Port: 5671, VirtualHost: "/", Username: "u", Password: "hunter2", ExchangeName: "logs"}
	assert.Equal(t, "host: mq, port: 5671, virtualHost: /, username: u, exchangeName: logs", o.String())
	assert.NotContains(t, fmt.Sprint(o), "hunter2")

	uri, err := amqp.ParseURI(o.URL())
	require.NoError(t, err)
	assert.Equal(t, "amqp", uri.Scheme)
	assert.Equal(t, "/", uri.Vhost)
	assert.Equal(t, "hunter2", uri.Password)

	o.TLS = &tls.Config{ServerName: "mq"}
	uri, err = amqp.ParseURI(o.URL())
	require.NoError(t, err)
	assert.Equal(t, "amqps", uri.Scheme)
	assert.Equal(t, 5671, uri.Port)
}

func TestOptions_Defaults(t *testing.T) {
	o := New(Options{}).Options()
	assert.NotNil(t, o.Layout)
	assert.NotNil(t, o.ErrorHandler)
	assert.NotNil(t, o.Dialer)
	assert.NotNil(t, o.Clock)
	assert.NotNil(t, o.Backoff)
	assert.Equal(t, DefaultPublishTimeout, o.PublishTimeout)
	assert.Equal(t, DefaultHeartbeat, o.Heartbeat)
	assert.Equal(t, DefaultDialTimeout, o.DialTimeout)
	assert.Equal(t, 1, o.StartAttempts)
	assert.Equal(t, DefaultConnectionName, o.ConnectionName)
	assert.Equal(t, DropNewest, o.AsyncPolicy)
}
