package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by package tests;
// `supervisord serve` always uses PostgresStore.
type MemoryStore struct {
	mu sync.Mutex

	jobs        map[string]*Job
	folders     map[string]*Folder
	cache       map[string]*CacheEntry // key: hpc+"/"+fingerprint
	credentials map[string]*Credential
	events      map[string][]*Event
	logs        map[string][]*Log
	gitRepos    map[string]*GitRepo
	allowlist   map[string]bool
	denylist    map[string]bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[string]*Job),
		folders:     make(map[string]*Folder),
		cache:       make(map[string]*CacheEntry),
		credentials: make(map[string]*Credential),
		events:      make(map[string][]*Event),
		logs:        make(map[string][]*Log),
		gitRepos:    make(map[string]*GitRepo),
		allowlist:   make(map[string]bool),
		denylist:    make(map[string]bool),
	}
}

func cacheKey(hpc, fingerprint string) string { return hpc + "/" + fingerprint }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateJob(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return ErrNotFound
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *MemoryStore) ListJobsByUser(_ context.Context, userID string) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, j := range m.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateFolder(_ context.Context, f *Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.folders[f.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFolder(_ context.Context, id string) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryStore) DeleteFolder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.folders, id)
	return nil
}

func (m *MemoryStore) GetCacheEntry(_ context.Context, hpc, fingerprint string) (*CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[cacheKey(hpc, fingerprint)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) PutCacheEntry(_ context.Context, hpc, fingerprint string, e *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	now := time.Now()
	cp.UpdatedAt = now
	if existing, ok := m.cache[cacheKey(hpc, fingerprint)]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	m.cache[cacheKey(hpc, fingerprint)] = &cp
	return nil
}

func (m *MemoryStore) DeleteCacheEntry(_ context.Context, hpc, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, cacheKey(hpc, fingerprint))
	return nil
}

func (m *MemoryStore) GetCredential(_ context.Context, id string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) PutCredential(_ context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.credentials[c.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, id)
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events[e.JobID] = append(m.events[e.JobID], &cp)
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, jobID string, offset, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return paginateEvents(m.events[jobID], offset, limit), nil
}

func paginateEvents(all []*Event, offset, limit int) []*Event {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	out := make([]*Event, end-offset)
	copy(out, all[offset:end])
	return out
}

func (m *MemoryStore) AppendLog(_ context.Context, l *Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	cp.Message = TruncateMessage(cp.Message)
	m.logs[l.JobID] = append(m.logs[l.JobID], &cp)
	return nil
}

func (m *MemoryStore) ListLogs(_ context.Context, jobID string, offset, limit int) ([]*Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.logs[jobID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	out := make([]*Log, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

func (m *MemoryStore) GetGitRepo(_ context.Context, gitID string) (*GitRepo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gitRepos[gitID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// PutGitRepo is a test/seed helper; not part of the Store interface.
func (m *MemoryStore) PutGitRepo(g *GitRepo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.gitRepos[g.GitID] = &cp
}

func (m *MemoryStore) IsAllowed(_ context.Context, hpc, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowlist[cacheKey(hpc, userID)], nil
}

func (m *MemoryStore) IsDenied(_ context.Context, hpc, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.denylist[cacheKey(hpc, userID)], nil
}

// SetAllowed and SetDenied are test/seed helpers; not part of the Store interface.
func (m *MemoryStore) SetAllowed(hpc, userID string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowlist[cacheKey(hpc, userID)] = v
}

func (m *MemoryStore) SetDenied(hpc, userID string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denylist[cacheKey(hpc, userID)] = v
}
