package tail

import (
	"bytes"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	headers := amqp.Table{
		"x-trace":    "abc",
		"message":    "payment %s failed",
		"threadName": "pool-2",
		"loggerName": "com.example.Billing",
		"timestamp":  int64(1700000000000),
		"level":      "ERROR",
		"context":    "billing",
	}
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, "billing.ERROR", headers, []byte("payment p-17 failed\n"), true))

	want := `billing.ERROR context="billing" level="ERROR" timestamp="1700000000000" loggerName="com.example.Billing" threadName="pool-2" message="payment %s failed" x-trace="abc"` +
		"\npayment p-17 failed\n"
	assert.Equal(t, want, buf.String())
}

func TestPrint_WithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, "svc.INFO", amqp.Table{"level": "INFO"}, []byte("no newline"), false))
	assert.Equal(t, "svc.INFO\nno newline\n", buf.String())
}
