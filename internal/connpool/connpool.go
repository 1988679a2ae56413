// Package connpool implements the Connection Pool component (spec §4.B): a
// shared pool of community-account SSH sessions keyed by cluster name, and a
// private pool of per-job SSH sessions keyed by job id. Both are ref-counted
// and lazily connect/dispose. All keys share one pool-wide mutex, extending
// the mutex discipline other_examples/Patrick-McKeever-bwb_scheduler__executor.go
// uses around its single *ssh.Client.
package connpool

import (
	"context"
	"sync"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
)

// Dialer constructs a new Session for a cluster or job; the pool never
// dials directly so tests can substitute a fake.
type Dialer func(ctx context.Context) (*sshsession.Session, error)

type entry struct {
	session  *sshsession.Session
	refCount int
}

// Pool is a generic ref-counted keyed session pool. SharedPool and
// PrivatePool are thin, differently-keyed wrappers over it.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

// Acquire returns the session for key, dialing via dial if this is the
// first acquisition, and increments the key's reference count. Callers
// must call Release(key) exactly once per successful Acquire.
func (p *Pool) Acquire(ctx context.Context, key string, dial Dialer) (*sshsession.Session, error) {
	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.refCount++
		p.mu.Unlock()
		return e.session, nil
	}
	p.mu.Unlock()

	session, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		// Lost the race to another goroutine's Acquire; keep theirs,
		// discard ours.
		e.refCount++
		_ = session.Dispose()
		return e.session, nil
	}
	p.entries[key] = &entry{session: session, refCount: 1}
	return session, nil
}

// Release decrements key's reference count, disposing and evicting the
// entry once it reaches zero.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		_ = e.session.Dispose()
		delete(p.entries, key)
	}
}

// RefCount reports the current reference count for key, or 0 if unheld.
func (p *Pool) RefCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return e.refCount
	}
	return 0
}

// Destroy forcibly disposes and evicts key regardless of reference count,
// used during scheduler shutdown.
func (p *Pool) Destroy(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		_ = e.session.Dispose()
		delete(p.entries, key)
	}
}

// SharedPool holds one community-account session per cluster.
type SharedPool struct{ pool *Pool }

// NewSharedPool returns an empty SharedPool.
func NewSharedPool() *SharedPool { return &SharedPool{pool: New()} }

func (s *SharedPool) Acquire(ctx context.Context, cluster string, dial Dialer) (*sshsession.Session, error) {
	return s.pool.Acquire(ctx, cluster, dial)
}
func (s *SharedPool) Release(cluster string)      { s.pool.Release(cluster) }
func (s *SharedPool) RefCount(cluster string) int { return s.pool.RefCount(cluster) }
func (s *SharedPool) Destroy(cluster string)      { s.pool.Destroy(cluster) }

// PrivatePool holds one per-job session for jobs that supply their own
// HPC credential instead of using the cluster's community account.
type PrivatePool struct{ pool *Pool }

// NewPrivatePool returns an empty PrivatePool.
func NewPrivatePool() *PrivatePool { return &PrivatePool{pool: New()} }

func (p *PrivatePool) Acquire(ctx context.Context, jobID string, dial Dialer) (*sshsession.Session, error) {
	return p.pool.Acquire(ctx, jobID, dial)
}
func (p *PrivatePool) Release(jobID string)      { p.pool.Release(jobID) }
func (p *PrivatePool) RefCount(jobID string) int { return p.pool.RefCount(jobID) }
func (p *PrivatePool) Destroy(jobID string)      { p.pool.Destroy(jobID) }
