package amqpadapter

import xlog "github.com/trickstertwo/xlog-amqp"

// MetricsCollector receives publish metrics. Implementations must be
// concurrency-safe. The metrics package has a Prometheus implementation.
type MetricsCollector interface {
	// LoggedMessage is called once per publish attempt; err is nil on success.
	LoggedMessage(level xlog.Level, durMS float64, size int, err error)
	// Dropped is called for every record that was not published.
	Dropped(level xlog.Level)
	// SessionState is called when the broker session opens or closes.
	SessionState(up bool)
}

type NoopMetricsCollector struct{}

func (*NoopMetricsCollector) LoggedMessage(xlog.Level, float64, int, error) {}
func (*NoopMetricsCollector) Dropped(xlog.Level)                            {}
func (*NoopMetricsCollector) SessionState(bool)                             {}
