// Package credentialguard implements the Credential Guard component (spec
// §4.H): validating a private-account credential with a throwaway SSH
// connection before registering it, and consulting the denylist so a
// known-bad account never spends a connection attempt
// (SPEC_FULL.md §5 supplement). The allowlist is not checked.
package credentialguard

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/secretstore"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// ErrDenied is returned when the (hpc, userID) pair is on the denylist.
var ErrDenied = errors.New("credentialguard: account is denylisted for this hpc")

// Probe is a throwaway connection test; *sshsession.Session satisfies it via
// Connect+Dispose, and tests substitute a fake that never dials out.
type Probe interface {
	Connect(ctx context.Context) error
	Dispose() error
}

// Dialer builds a Probe for one validation attempt; production code wires
// sshsession.New.
type Dialer func(addr, user, password string) Probe

// Guard validates and registers private-account credentials.
type Guard struct {
	allowDeny store.AllowDenyStore
	secrets   *secretstore.Store
	dial      Dialer
}

// New returns a Guard consulting allowDeny's denylist before every
// validation attempt and registering validated credentials into secrets.
func New(allowDeny store.AllowDenyStore, secrets *secretstore.Store, dial Dialer) *Guard {
	return &Guard{allowDeny: allowDeny, secrets: secrets, dial: dial}
}

// ValidateAndRegister checks the denylist, opens a throwaway connection to
// addr to confirm the credential actually authenticates, and on success
// registers it in the secret store under a fresh opaque id.
func (g *Guard) ValidateAndRegister(ctx context.Context, hpc, userID, addr, sshUser, sshPassword string) (string, error) {
	denied, err := g.allowDeny.IsDenied(ctx, hpc, userID)
	if err != nil {
		return "", errors.Wrap(err, "checking denylist")
	}
	if denied {
		return "", ErrDenied
	}

	probe := g.dial(addr, sshUser, sshPassword)
	defer func() { _ = probe.Dispose() }()

	if err := probe.Connect(ctx); err != nil {
		return "", errors.Wrap(err, "validating credential: connection failed")
	}

	id := uuid.NewString()
	g.secrets.Register(id, secretstore.Secret{User: sshUser, Password: sshPassword})
	return id, nil
}
