package sshsession

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
	require.Equal(t, `'/tmp/plain'`, shellQuote("/tmp/plain"))
}

func TestExitErrorMessageIncludesCmdAndStderr(t *testing.T) {
	err := &ExitError{Cmd: "sbatch job.sh", Result: Result{ExitCode: 1, Stderr: "permission denied"}}
	require.Contains(t, err.Error(), "sbatch job.sh")
	require.Contains(t, err.Error(), "permission denied")
	require.Contains(t, err.Error(), "1")
}

func TestSessionIsConnectedFalseBeforeConnect(t *testing.T) {
	s := New("127.0.0.1:22", "user", "pw")
	require.False(t, s.IsConnected())
}
