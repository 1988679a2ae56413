// Package maintainer implements the Maintainer component (spec §4.D): the
// per-job state machine a scheduler worker drives from admission through
// Slurm submission, polling, and result collection.
//
// The contract (Init/Maintain/OnCancel/IsInit/IsEnd/JobOnHPC, a static
// registry keyed by a maintainer discriminator) follows the teacher's
// batch.Provider registration pattern
// (gwennacupicop-jennah/internal/batch/provider.go's
// RegisterGCPProvider/NewProvider), generalized from "pick a cloud batch
// provider" to "pick a maintainer variant for this job's discriminator".
package maintainer

import (
	"context"
	"fmt"
	"sync"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// State is one point in the maintainer's lifecycle (spec §3/§4.D).
type State string

const (
	StateQueued       State = "QUEUED"
	StateInitializing State = "INITIALIZING"
	StateSubmitted    State = "SUBMITTED"
	StateRunning      State = "RUNNING"
	StateCollecting   State = "COLLECTING"
	StateCancelling   State = "CANCELLING"
	StateEnded        State = "ENDED"
	StateFailed       State = "FAILED"
)

// Maintainer drives one job from admission to a terminal state. A single
// maintainer instance is owned by exactly one scheduler worker goroutine
// for the job's entire lifetime.
type Maintainer interface {
	// Init performs one-time setup: staging folders and submitting the job
	// to Slurm. It does not validate the job's Slurm request against the
	// cluster ceiling. Called once, before the first Maintain.
	Init(ctx context.Context) error

	// Maintain advances the state machine by one step: polling Slurm,
	// detecting completion, and collecting results. Called repeatedly by
	// the scheduler's worker loop until IsEnd reports true.
	Maintain(ctx context.Context) error

	// OnCancel is invoked when the scheduler is asked to cancel a running
	// job; it transitions through StateCancelling, issues scancel, and
	// settles into the same terminal StateEnded/StateFailed pair Maintain
	// uses, per the CANCELLING->ENDED edge in the lifecycle diagram (§4.D).
	OnCancel(ctx context.Context) error

	// IsInit reports whether Init has completed (successfully or not).
	IsInit() bool

	// IsEnd reports whether the maintainer has reached a terminal state.
	IsEnd() bool

	// JobOnHPC reports whether a Slurm job has actually been submitted (and
	// so scancel/sacct are meaningful), as distinct from IsInit which only
	// tracks whether Init ran.
	JobOnHPC() bool

	// State returns the maintainer's current lifecycle state.
	State() State

	// DumpEvents and DumpLogs page through this job's event/log history.
	DumpEvents(ctx context.Context, offset, limit int) ([]*store.Event, error)
	DumpLogs(ctx context.Context, offset, limit int) ([]*store.Log, error)
}

// Constructor builds a Maintainer for job. Registered constructors are
// looked up by job.Maintainer (spec's maintainer discriminator:
// "plain" or "community_contribution").
type Constructor func(deps Deps, job *store.Job) (Maintainer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a maintainer constructor under discriminator. Called from
// each maintainer variant's init(), matching the teacher's
// RegisterGCPProvider/RegisterAWSProvider pattern.
func Register(discriminator string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[discriminator] = ctor
}

// New builds the registered Maintainer for job.Maintainer, or an error if
// no constructor is registered under that discriminator.
func New(deps Deps, job *store.Job) (Maintainer, error) {
	registryMu.RLock()
	ctor, ok := registry[job.Maintainer]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("maintainer: no constructor registered for discriminator %q", job.Maintainer)
	}
	return ctor(deps, job)
}
