package secretstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/secretstore"
)

func TestRegisterAndResolve(t *testing.T) {
	s := secretstore.New(time.Minute, time.Minute)
	s.Register("cred-1", secretstore.Secret{User: "alice", Password: "hunter2"})

	got, err := s.Resolve("cred-1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.User)
}

func TestResolveMissingReturnsNotFound(t *testing.T) {
	s := secretstore.New(time.Minute, time.Minute)
	_, err := s.Resolve("nope")
	require.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestRevokeRemovesEntry(t *testing.T) {
	s := secretstore.New(time.Minute, time.Minute)
	s.Register("cred-1", secretstore.Secret{User: "alice", Password: "hunter2"})
	s.Revoke("cred-1")

	_, err := s.Resolve("cred-1")
	require.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestRegisterWithTTLExpires(t *testing.T) {
	s := secretstore.New(time.Hour, 10*time.Millisecond)
	s.RegisterWithTTL("cred-1", secretstore.Secret{User: "alice"}, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	_, err := s.Resolve("cred-1")
	require.ErrorIs(t, err, secretstore.ErrNotFound)
}
