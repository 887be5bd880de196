package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "emit")
	assert.Contains(t, names, "tail")
}

func TestEmit_RejectsBadFlagsBeforeDialing(t *testing.T) {
	cases := map[string][]string{
		"pattern": {"emit", "--pattern", "%bogus"},
		"level":   {"emit", "--level", "loud"},
		"console": {"emit", "--console", "syslog"},
		"count":   {"emit", "--count", "-1"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
		})
	}
}

func TestEmit_EnvFallbackIsValidated(t *testing.T) {
	t.Setenv("XLOG_AMQP_PORT", "not-a-port")
	_, err := execute(t, "emit")
	assert.ErrorContains(t, err, "XLOG_AMQP_PORT")
}

func TestTail_RejectsInvalidConnection(t *testing.T) {
	_, err := execute(t, "tail", "--host", "", "--exchange", "")
	require.Error(t, err)
	assert.ErrorContains(t, err, "host is empty")
}
