package credentialguard_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/credentialguard"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/secretstore"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

type fakeProbe struct {
	connectErr error
	disposed   bool
}

func (f *fakeProbe) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeProbe) Dispose() error                    { f.disposed = true; return nil }

func TestValidateAndRegisterSucceeds(t *testing.T) {
	s := store.NewMemoryStore()
	secrets := secretstore.New(time.Minute, time.Minute)
	probe := &fakeProbe{}

	g := credentialguard.New(s, secrets, func(addr, user, password string) credentialguard.Probe {
		return probe
	})

	id, err := g.ValidateAndRegister(context.Background(), "expanse", "alice", "expanse.sdsc.edu:22", "alice", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.True(t, probe.disposed)

	secret, err := secrets.Resolve(id)
	require.NoError(t, err)
	require.Equal(t, "alice", secret.User)
}

func TestValidateAndRegisterRejectsDenylistedAccount(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetDenied("expanse", "mallory", true)
	secrets := secretstore.New(time.Minute, time.Minute)

	g := credentialguard.New(s, secrets, func(addr, user, password string) credentialguard.Probe {
		t.Fatal("dial should not be attempted for a denylisted account")
		return nil
	})

	_, err := g.ValidateAndRegister(context.Background(), "expanse", "mallory", "addr", "mallory", "pw")
	require.ErrorIs(t, err, credentialguard.ErrDenied)
}

func TestValidateAndRegisterPropagatesConnectFailure(t *testing.T) {
	s := store.NewMemoryStore()
	secrets := secretstore.New(time.Minute, time.Minute)
	probe := &fakeProbe{connectErr: errors.New("auth failed")}

	g := credentialguard.New(s, secrets, func(addr, user, password string) credentialguard.Probe {
		return probe
	})

	_, err := g.ValidateAndRegister(context.Background(), "expanse", "bob", "addr", "bob", "wrongpw")
	require.Error(t, err)
	require.True(t, probe.disposed)
}
