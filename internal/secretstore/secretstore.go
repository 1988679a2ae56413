// Package secretstore implements the TTL-bound credential cache the
// Credential Guard (spec §4.H) registers validated private-account
// credentials into. Backed by github.com/patrickmn/go-cache, the pack's
// only in-memory TTL cache.
package secretstore

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when an id has expired or was never registered.
var ErrNotFound = errors.New("secretstore: credential not found or expired")

// Secret is the {user, password} pair a maintainer dials with once it
// resolves a job's credentialId.
type Secret struct {
	User     string
	Password string
}

// Store is a TTL-keyed secret store, one entry per job's private credential.
// The TTL matches the job's expected lifetime (spec §4.H); entries are never
// refreshed, only registered once and read many times until expiry.
type Store struct {
	cache *cache.Cache
}

// New returns a Store whose entries expire after ttl unless overridden per
// call, with expired entries swept every cleanupInterval.
func New(ttl, cleanupInterval time.Duration) *Store {
	return &Store{cache: cache.New(ttl, cleanupInterval)}
}

// Register stores secret under the caller-chosen opaque id with the store's
// default TTL; that id is what the caller persists as the job's credentialId.
func (s *Store) Register(id string, secret Secret) {
	s.cache.SetDefault(id, secret)
}

// RegisterWithTTL is Register with an explicit per-entry TTL.
func (s *Store) RegisterWithTTL(id string, secret Secret, ttl time.Duration) {
	s.cache.Set(id, secret, ttl)
}

// Resolve returns the secret registered under id, or ErrNotFound.
func (s *Store) Resolve(id string) (Secret, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return Secret{}, ErrNotFound
	}
	return v.(Secret), nil
}

// Revoke removes id immediately, ahead of its TTL. The scheduler and
// maintainers do not call it; a registered secret otherwise lives until
// its TTL expires.
func (s *Store) Revoke(id string) {
	s.cache.Delete(id)
}
