package amqpadapter

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trickstertwo/xclock"
	"go.uber.org/multierr"

	xlog "github.com/trickstertwo/xlog-amqp"
	"github.com/trickstertwo/xlog-amqp/layout"
)

// ErrorHandler receives every failure the appender swallows: failed starts,
// failed publishes and dropped records. It is never called with a lock held,
// so it may log back into the same logger. Failures raised while a handler
// call is still running are not delivered; Stats.Unreported counts them.
type ErrorHandler func(error)

// AsyncDropPolicy controls behavior when the async queue is full.
type AsyncDropPolicy uint8

const (
	DropNewest AsyncDropPolicy = iota // drop the record being logged (default)
	DropOldest                        // evict the oldest queued record to make room
	Block                             // block the caller until there is room
)

const (
	DefaultPort           = 5672
	DefaultDialTimeout    = 10 * time.Second
	DefaultHeartbeat      = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second
	DefaultQueueSize      = 1024
	DefaultConnectionName = "xlog-amqp"
)

// Options configures one appender. The six connection parameters (Host,
// Port, VirtualHost, Username, Password, ExchangeName) are required and are
// only read by Start.
type Options struct {
	Host         string
	Port         int
	VirtualHost  string
	Username     string
	Password     string
	ExchangeName string

	// Layout renders the message body. Default: layout.Default().
	Layout   layout.Layout
	MinLevel xlog.Level

	// ErrorHandler defaults to a zap logger on stderr named "xlog-amqp".
	ErrorHandler ErrorHandler

	// ConnectionName is shown in broker management UIs.
	ConnectionName string
	// TLS switches the scheme to amqps.
	TLS *tls.Config

	DialTimeout time.Duration
	Heartbeat   time.Duration
	// PublishTimeout bounds one publish (and its confirm). Negative disables.
	PublishTimeout time.Duration
	// Confirm puts the channel in confirm mode; a publish then waits for the
	// broker ack and a nack counts as a publish failure.
	Confirm bool

	// StartAttempts is how many times Start tries to connect. Default 1.
	StartAttempts int
	// Backoff is the template for start retries and reconnect gating.
	// Default: backoff.NewExponentialBackOff().
	Backoff *backoff.ExponentialBackOff
	// DisableReconnect keeps the appender dropping records once its session
	// is lost instead of redialing.
	DisableReconnect bool

	Async          bool
	AsyncQueueSize int
	AsyncPolicy    AsyncDropPolicy

	// Dialer opens broker connections. Default: Dial (amqp091-go).
	Dialer Dialer
	// Clock gates reconnect attempts. Default: xclock.Default().
	Clock xclock.Clock
}

func (o Options) withDefaults() Options {
	if o.Layout == nil {
		o.Layout = layout.Default()
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = defaultErrorHandler
	}
	if o.ConnectionName == "" {
		o.ConnectionName = DefaultConnectionName
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Heartbeat == 0 {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.PublishTimeout == 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	if o.StartAttempts <= 0 {
		o.StartAttempts = 1
	}
	if o.Backoff == nil {
		o.Backoff = backoff.NewExponentialBackOff()
	}
	if o.AsyncQueueSize <= 0 {
		o.AsyncQueueSize = DefaultQueueSize
	}
	if o.Dialer == nil {
		o.Dialer = Dial
	}
	if o.Clock == nil {
		o.Clock = xclock.Default()
	}
	return o
}

// Validate reports every missing or malformed connection parameter.
func (o Options) Validate() error {
	var err error
	if strings.TrimSpace(o.Host) == "" {
		err = multierr.Append(err, errors.New("host is empty"))
	}
	if o.Port < 1 || o.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", o.Port))
	}
	if o.VirtualHost == "" {
		err = multierr.Append(err, errors.New("virtual host is empty"))
	}
	if o.Username == "" {
		err = multierr.Append(err, errors.New("username is empty"))
	}
	if o.Password == "" {
		err = multierr.Append(err, errors.New("password is empty"))
	}
	if o.ExchangeName == "" {
		err = multierr.Append(err, errors.New("exchange name is empty"))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

// String summarizes the connection parameters. The password is never
// included.
func (o Options) String() string {
	return fmt.Sprintf("host: %s, port: %d, virtualHost: %s, username: %s, exchangeName: %s",
		o.Host, o.Port, o.VirtualHost, o.Username, o.ExchangeName)
}

// URL is the dial address, credentials included.
func (o Options) URL() string {
	scheme := "amqp"
	if o.TLS != nil {
		scheme = "amqps"
	}
	return amqp.URI{
		Scheme:   scheme,
		Host:     o.Host,
		Port:     o.Port,
		Username: o.Username,
		Password: o.Password,
		Vhost:    o.VirtualHost,
	}.String()
}

func (o Options) amqpConfig() amqp.Config {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(o.ConnectionName)
	return amqp.Config{
		Vhost:           o.VirtualHost,
		Heartbeat:       o.Heartbeat,
		TLSClientConfig: o.TLS,
		Properties:      props,
		Dial:            amqp.DefaultDial(o.DialTimeout),
	}
}

// newBackoff returns a fresh copy of the backoff template.
func (o Options) newBackoff() *backoff.ExponentialBackOff {
	b := *o.Backoff
	b.Reset()
	return &b
}
