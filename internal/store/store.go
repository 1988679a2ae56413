package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by any Get/lookup method when the row does not exist.
var ErrNotFound = errors.New("store: not found")

// JobStore is the CRUD surface the scheduler and maintainers use for Job rows.
type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	DeleteJob(ctx context.Context, id string) error
	ListJobsByUser(ctx context.Context, userID string) ([]*Job, error)
}

// FolderStore is the CRUD surface for Folder rows.
type FolderStore interface {
	CreateFolder(ctx context.Context, f *Folder) error
	GetFolder(ctx context.Context, id string) (*Folder, error)
	DeleteFolder(ctx context.Context, id string) error
}

// CacheStore backs the content-addressed staging cache (§4.C).
type CacheStore interface {
	GetCacheEntry(ctx context.Context, hpc, fingerprint string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, hpc, fingerprint string, e *CacheEntry) error
	DeleteCacheEntry(ctx context.Context, hpc, fingerprint string) error
}

// CredentialStore backs private-account credentials (§4.H).
type CredentialStore interface {
	GetCredential(ctx context.Context, id string) (*Credential, error)
	PutCredential(ctx context.Context, c *Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// EventStore and LogStore back the append-only event/log streams (§4.G).
type EventStore interface {
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, jobID string, offset, limit int) ([]*Event, error)
}

type LogStore interface {
	AppendLog(ctx context.Context, l *Log) error
	ListLogs(ctx context.Context, jobID string, offset, limit int) ([]*Log, error)
}

// GitStore resolves registered git-backed source repositories (§5 supplement).
type GitStore interface {
	GetGitRepo(ctx context.Context, gitID string) (*GitRepo, error)
}

// AllowDenyStore backs the credential guard's pre-connection gate.
type AllowDenyStore interface {
	IsAllowed(ctx context.Context, hpc, userID string) (bool, error)
	IsDenied(ctx context.Context, hpc, userID string) (bool, error)
}

// Store is the aggregate surface the supervisor's components are wired
// against; concrete implementations (postgres, in-memory) satisfy all of it.
type Store interface {
	JobStore
	FolderStore
	CacheStore
	CredentialStore
	EventStore
	LogStore
	GitStore
	AllowDenyStore

	Close() error
}
