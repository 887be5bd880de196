// Package metrics exports AMQP appender metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	xlog "github.com/trickstertwo/xlog-amqp"
)

const namespace = "xlog_amqp"

// Collector implements amqpadapter.MetricsCollector.
type Collector struct {
	messages  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	size      *prometheus.HistogramVec
	dropped   *prometheus.CounterVec
	connected prometheus.Gauge
}

// NewCollector registers the appender metrics with reg. A nil reg selects
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Publish attempts by level and result",
			},
			[]string{"level", "result"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Duration of one publish, including the broker confirm when enabled",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9), // 100µs to ~6.5s
			},
			[]string{"level"},
		),
		size: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_size_bytes",
				Help:      "Size of published message bodies",
				Buckets:   prometheus.ExponentialBuckets(64, 2, 10), // 64B to 32KB
			},
			[]string{"level"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_total",
				Help:      "Records that never reached the broker",
			},
			[]string{"level"},
		),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the appender holds an open broker session",
		}),
	}
}

func (c *Collector) LoggedMessage(level xlog.Level, durMS float64, size int, err error) {
	lv := level.String()
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.messages.WithLabelValues(lv, result).Inc()
	c.duration.WithLabelValues(lv).Observe(durMS / 1000)
	if err == nil {
		c.size.WithLabelValues(lv).Observe(float64(size))
	}
}

func (c *Collector) Dropped(level xlog.Level) {
	c.dropped.WithLabelValues(level.String()).Inc()
}

func (c *Collector) SessionState(up bool) {
	if up {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}
