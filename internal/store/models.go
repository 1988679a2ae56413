// Package store defines the entities and CRUD interfaces the supervisor
// consumes from the relational store. The core never issues SQL directly
// outside this package; every other component talks to a Store interface.
package store

import "time"

// Job is the unit of work. Before admission it is immutable except for
// QueuedAt; after admission exactly one maintainer worker mutates it.
type Job struct {
	ID         string
	UserID     string
	HPC        string
	Maintainer string // discriminator: "plain" | "community_contribution"

	CredentialID *string // private-account only

	Param map[string]string
	Env   map[string]string
	Slurm map[string]string

	ExecutableSource *Source
	DataSource       *Source

	LocalExecutableFolderID  *string
	LocalDataFolderID        *string
	RemoteDataFolderID       *string
	RemoteExecutableFolderID *string
	RemoteResultFolderID     *string

	CreatedAt     time.Time
	QueuedAt      *time.Time
	InitializedAt *time.Time
	FinishedAt    *time.Time
	IsFailed      bool

	Nodes       int
	CPUs        int
	CPUTime     float64
	Memory      int64
	MemoryUsage int64
	Walltime    float64
}

// Source discriminates how a folder's content was staged.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceGit    SourceKind = "git"
	SourceGlobus SourceKind = "globus"
	SourceEmpty  SourceKind = "empty"
)

// Source describes where a folder's contents came from.
type Source struct {
	Kind SourceKind

	LocalPath string // SourceLocal

	GitID string // SourceGit: key into GitRepo

	GlobusEndpoint string // SourceGlobus
	GlobusPath     string // SourceGlobus
}

// Folder is a remote workspace descriptor.
type Folder struct {
	ID         string
	HPC        string
	UserID     string
	HPCPath    string
	GlobusPath *string
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// CacheEntry is a content-addressed record of a staged, reusable zip.
type CacheEntry struct {
	HPC       string
	HPCPath   string // <parent dir of the folder staged when the entry was built>/cache/<fingerprint>.zip; not a cluster-wide <root>/cache path
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential is an ephemeral {user, password} pair keyed by opaque id.
type Credential struct {
	ID       string
	User     string
	Password string
}

// EventType enumerates the lifecycle events the maintainer/scheduler emit.
type EventType string

const (
	EventJobQueued             EventType = "JOB_QUEUED"
	EventJobRegistered         EventType = "JOB_REGISTERED"
	EventJobInit               EventType = "JOB_INIT"
	EventJobInitError          EventType = "JOB_INIT_ERROR"
	EventJobRetry              EventType = "JOB_RETRY"
	EventJobFailed             EventType = "JOB_FAILED"
	EventJobEnded              EventType = "JOB_ENDED"
	EventSlurmUploadExecutable EventType = "SLURM_UPLOAD_EXECUTABLE"
	EventSlurmUploadData       EventType = "SLURM_UPLOAD_DATA"
	EventSlurmCreateResult     EventType = "SLURM_CREATE_RESULT"
)

// Event is an append-only lifecycle record.
type Event struct {
	JobID     string
	Type      EventType
	Message   string
	CreatedAt time.Time
}

// maxLogMessage is the truncation point for log messages (§3 Event / Log).
const maxLogMessage = 500

// truncationSuffix marks a log message that was cut short.
const truncationSuffix = "...[truncated]"

// Log is an append-only free-text record, truncated to 500 chars + sentinel.
type Log struct {
	JobID     string
	Message   string
	CreatedAt time.Time
}

// TruncateMessage truncates msg to the Log contract's 500-character limit.
func TruncateMessage(msg string) string {
	if len(msg) <= maxLogMessage {
		return msg
	}
	cut := maxLogMessage - len(truncationSuffix)
	if cut < 0 {
		cut = 0
	}
	return msg[:cut] + truncationSuffix
}

// GitRepo is a registered source repository a Git-sourced folder clones from.
// Supplements spec.md's bare gitId with the upstream's supported-HPC gate
// (see SPEC_FULL.md §5).
type GitRepo struct {
	GitID         string
	URL           string
	DefaultBranch string
	SupportedHPC  []string
}

// AllowDenyEntry is one row of the allowlist/denylist consulted by the
// credential guard before it spends a connection attempt.
type AllowDenyEntry struct {
	HPC    string
	UserID string
}

// ExecutableManifest is the per-job descriptor bundled with a Git source
// (spec GLOSSARY: "Executable manifest"): container image + CVMFS mode,
// pre/execution/post command stages, and the default result file. The
// community-contribution maintainer variant requires one; the plain
// variant does not look at it.
type ExecutableManifest struct {
	Container struct {
		Image     string `yaml:"image"`
		CVMFSMode bool   `yaml:"cvmfs_mode"`
	} `yaml:"container"`

	Pre               []string `yaml:"pre"`
	Execution         []string `yaml:"execution"`
	Post              []string `yaml:"post"`
	DefaultResultFile string   `yaml:"default_result_file"`
}
