package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xlog "github.com/trickstertwo/xlog-amqp"
	amqpadapter "github.com/trickstertwo/xlog-amqp/adapter/amqp"
)

var _ amqpadapter.MetricsCollector = (*Collector)(nil)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.LoggedMessage(xlog.LevelInfo, 2.5, 120, nil)
	c.LoggedMessage(xlog.LevelInfo, 1, 80, nil)
	c.LoggedMessage(xlog.LevelError, 3, 40, errors.New("channel closed"))
	c.Dropped(xlog.LevelError)
	c.Dropped(xlog.LevelWarn)
	c.Dropped(xlog.LevelError)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messages.WithLabelValues("INFO", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("ERROR", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dropped.WithLabelValues("ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues("WARN")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
	assert.Equal(t, 1, testutil.CollectAndCount(c.size))
}

func TestCollector_SessionState(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SessionState(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connected))
	c.SessionState(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connected))
}

func TestCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestCollector_WiredIntoAppender(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	a := amqpadapter.New(amqpadapter.Options{ErrorHandler: func(error) {}})
	a.SetMetricsCollector(c)
	require.Error(t, a.Start(context.Background()))

	a.Log(&xlog.Record{Level: xlog.LevelWarn, Context: "svc", Message: "lost"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues("WARN")))
	n, err := testutil.GatherAndCount(reg, "xlog_amqp_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
