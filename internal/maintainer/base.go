package maintainer

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/resultcache"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// remoteOpBackoff bounds retries of transient remote operations (spec §5):
// 1s initial, x2 multiplier, 30s cap, 5 attempts.
var remoteOpBackoff = []retry.Option{
	retry.Attempts(5),
	retry.Delay(time.Second),
	retry.MaxDelay(30 * time.Second),
	retry.DelayType(retry.BackOffDelay),
}

// jobCodes classifies the squeue %t status codes the remote contract (§6)
// names: C/CD/UNKNOWN are completion, F/NF/ERROR are failure, anything else
// (PD, R, CG, ...) is still running. Structurally grounded on
// other_examples/Patrick-McKeever-bwb_scheduler__executor.go's JOB_CODES
// lookup table, with the state set taken verbatim from the remote contract
// rather than sacct's full-word State vocabulary.
var jobCodes = map[string]struct {
	done   bool
	failed bool
}{
	"C":       {true, false},
	"CD":      {true, false},
	"UNKNOWN": {true, false},
	"F":       {true, true},
	"NF":      {true, true},
	"ERROR":   {true, true},
}

// classify returns the {done, failed} pair for a squeue %t status code,
// treating any code outside jobCodes as still running.
func classify(status string) (done, failed bool) {
	c, ok := jobCodes[status]
	if !ok {
		return false, false
	}
	return c.done, c.failed
}

// base holds the session/state/polling machinery common to every maintainer
// variant (spec §4.D's "variants differ only in how init() builds the
// submission"). plainMaintainer and communityMaintainer embed it and each
// supply their own Init (with the sbatch script it renders) and Maintain.
type base struct {
	deps Deps
	job  *store.Job

	mu         sync.Mutex
	state      State
	initDone   bool
	slurmJobID string

	poolKey string // connpool key: cluster name (shared) or job id (private)
	shared  bool

	resultDir string
}

func newBase(deps Deps, job *store.Job) base {
	shared := job.CredentialID == nil
	poolKey := job.HPC
	if !shared {
		poolKey = job.ID
	}
	return base{deps: deps, job: job, state: StateQueued, poolKey: poolKey, shared: shared}
}

func (b *base) session(ctx context.Context) (*sshsession.Session, func(), error) {
	hpc := b.deps.HPC.Config
	dial := func(ctx context.Context) (*sshsession.Session, error) {
		user, password, err := b.credentials(ctx)
		if err != nil {
			return nil, err
		}
		s := b.deps.Dial(fmt.Sprintf("%s:%d", hpc.IP, hpc.Port), user, password)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	if b.shared {
		s, err := b.deps.SharedPool.Acquire(ctx, b.poolKey, dial)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { b.deps.SharedPool.Release(b.poolKey) }, nil
	}

	s, err := b.deps.PrivatePool.Acquire(ctx, b.poolKey, dial)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { b.deps.PrivatePool.Release(b.poolKey) }, nil
}

func (b *base) credentials(ctx context.Context) (string, string, error) {
	if b.job.CredentialID == nil {
		login := b.deps.HPC.Config.CommunityLogin
		if login == nil {
			return "", "", fmt.Errorf("cluster %s has no community login configured", b.deps.HPC.Name)
		}
		return login.User, login.Password, nil
	}
	secret, err := b.deps.Secrets.Resolve(*b.job.CredentialID)
	if err != nil {
		return "", "", errors.Wrap(err, "resolving job credential")
	}
	return secret.User, secret.Password, nil
}

func (b *base) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) IsInit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initDone
}

func (b *base) IsEnd() bool {
	s := b.State()
	return s == StateEnded || s == StateFailed
}

func (b *base) JobOnHPC() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slurmJobID != ""
}

// fail emits JOB_INIT_ERROR (before the job has ever reached Slurm) or
// JOB_FAILED (once it has), sets StateFailed, and returns the wrapped cause.
func (b *base) fail(ctx context.Context, eventType store.EventType, cause error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(cause, format, args...)
	_ = b.deps.Events.EmitEvent(ctx, b.job.ID, eventType, wrapped.Error())
	b.setState(StateFailed)
	return wrapped
}

// persistFolder creates a Folder row for hpcPath and returns its id.
func (b *base) persistFolder(ctx context.Context, hpcPath string) (string, error) {
	folder := &store.Folder{
		ID:      b.job.ID + ":" + path.Base(hpcPath),
		HPC:     b.deps.HPC.Name,
		UserID:  b.job.UserID,
		HPCPath: hpcPath,
	}
	if err := b.deps.Store.CreateFolder(ctx, folder); err != nil {
		return "", errors.Wrapf(err, "persisting folder row for %s", hpcPath)
	}
	return folder.ID, nil
}

// refreshLifecycleFields reloads jobID's store-side lifecycle timestamps
// into b.job before a usage-counter write. The event emitter's touchJob
// (spec §4.G) owns QueuedAt/InitializedAt/FinishedAt/IsFailed; b.job is a
// long-lived in-process copy that never sees those mutations (they land on
// a freshly-reloaded copy inside touchJob), so persisting b.job unmodified
// would silently clobber them back to their zero value.
func (b *base) refreshLifecycleFields(ctx context.Context) error {
	fresh, err := b.deps.Store.GetJob(ctx, b.job.ID)
	if err != nil {
		return errors.Wrap(err, "reloading job before usage-counter write")
	}
	b.job.QueuedAt = fresh.QueuedAt
	b.job.InitializedAt = fresh.InitializedAt
	b.job.FinishedAt = fresh.FinishedAt
	b.job.IsFailed = fresh.IsFailed
	return nil
}

// pollStatus reads the job's current squeue %t status code. A squeue miss
// (job no longer scheduled — already cleared from the scheduler's window)
// is reported as "UNKNOWN", which the remote contract (§6) treats as
// completed.
func (b *base) pollStatus(ctx context.Context, sess *sshsession.Session) (string, error) {
	var out sshsession.Result
	if err := retry.Do(func() error {
		var execErr error
		out, execErr = sess.Exec(ctx, fmt.Sprintf("squeue -j %s -h -o %%t", b.slurmJobID))
		return execErr
	}, remoteOpBackoff...); err != nil {
		return "", err
	}

	status := strings.TrimSpace(out.Stdout)
	if status == "" {
		return "UNKNOWN", nil
	}
	return status, nil
}

// tailFile reads a small remote file's contents, swallowing a missing file.
func (b *base) tailFile(ctx context.Context, sess *sshsession.Session, remotePath string) (string, error) {
	res, err := sess.Exec(ctx, fmt.Sprintf("tail -c 4000 %s 2>/dev/null || true", remotePath))
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// collectUsage fills in the job's resource-usage fields from sacct; a
// failure here is logged but never fails the job, matching the "collecting
// is best-effort bookkeeping" posture of publishResultFolder.
func (b *base) collectUsage(ctx context.Context, sess *sshsession.Session) {
	res, err := sess.Exec(ctx, fmt.Sprintf("sacct -j %s -o AllocNodes,AllocCPUS,CPUTimeRAW,MaxRSS,ElapsedRaw -n -P --noheader | head -n1", b.slurmJobID))
	if err != nil {
		return
	}
	fields := strings.Split(strings.TrimSpace(res.Stdout), "|")
	if len(fields) != 5 {
		return
	}
	if v, err := strconv.Atoi(fields[0]); err == nil {
		b.job.Nodes = v
	}
	if v, err := strconv.Atoi(fields[1]); err == nil {
		b.job.CPUs = v
	}
	if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
		b.job.CPUTime = v
	}
	if v, ok := parseSlurmBytes(fields[3]); ok {
		b.job.MemoryUsage = v
	}
	if v, err := strconv.ParseFloat(fields[4], 64); err == nil {
		b.job.Walltime = v
	}
}

// parseSlurmBytes parses sacct's MaxRSS field (e.g. "512348K", "2.1G").
func parseSlurmBytes(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(v * float64(mult)), true
}

// publishResultFolder lists the result directory's immediate children and
// publishes them to the result-folder content cache, sorting defaultFile
// (if non-empty and present) first via resultcache.Entry.Default.
func (b *base) publishResultFolder(ctx context.Context, sess *sshsession.Session, defaultFile string) error {
	res, err := sess.Exec(ctx, fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -printf '%%f\\t%%y\\n'", b.resultDir))
	if err != nil {
		return err
	}

	var entries []resultcache.Entry
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		entries = append(entries, resultcache.Entry{
			Name:    parts[0],
			IsDir:   parts[1] == "d",
			Default: defaultFile != "" && parts[0] == defaultFile,
		})
	}

	if b.deps.ResultCache == nil {
		return nil
	}
	return b.deps.ResultCache.Put(ctx, b.job.ID, entries)
}

// OnCancel issues scancel for the submitted Slurm job id and settles the
// job into StateEnded (or StateFailed if the cancel itself could not be
// delivered), following the CANCELLING->ENDED edge of the lifecycle
// diagram rather than a separate terminal cancelled state. Identical across
// every maintainer variant.
func (b *base) OnCancel(ctx context.Context) error {
	b.setState(StateCancelling)

	if !b.JobOnHPC() {
		_ = b.deps.Events.EmitEvent(ctx, b.job.ID, store.EventJobEnded, "cancelled before slurm submission")
		b.setState(StateEnded)
		return nil
	}

	sess, release, err := b.session(ctx)
	if err != nil {
		return errors.Wrap(err, "acquiring ssh session")
	}
	defer release()

	if err := retry.Do(func() error {
		_, execErr := sess.Exec(ctx, fmt.Sprintf("scancel %s", b.slurmJobID))
		return execErr
	}, remoteOpBackoff...); err != nil {
		return b.fail(ctx, store.EventJobFailed, err, "cancelling slurm job")
	}

	_ = b.deps.Events.EmitEvent(ctx, b.job.ID, store.EventJobEnded, fmt.Sprintf("slurm job %s cancelled", b.slurmJobID))
	b.setState(StateEnded)
	return nil
}

func (b *base) DumpEvents(ctx context.Context, offset, limit int) ([]*store.Event, error) {
	return b.deps.Events.DumpEvents(ctx, b.job.ID, offset, limit)
}

func (b *base) DumpLogs(ctx context.Context, offset, limit int) ([]*store.Log, error) {
	return b.deps.Events.DumpLogs(ctx, b.job.ID, offset, limit)
}

// renderSbatchDirectives writes the #SBATCH directive block shared by both
// maintainer variants: output/error paths plus whichever of
// nodes/tasks/cpus_per_task/mem_total/gpus/walltime the job requested.
func renderSbatchDirectives(b *strings.Builder, job *store.Job, resultDir string) {
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(b, "#SBATCH --output=%s/stdout.log\n", resultDir)
	fmt.Fprintf(b, "#SBATCH --error=%s/stderr.log\n", resultDir)

	if v, ok := job.Slurm["nodes"]; ok {
		fmt.Fprintf(b, "#SBATCH --nodes=%s\n", v)
	}
	if v, ok := job.Slurm["tasks"]; ok {
		fmt.Fprintf(b, "#SBATCH --ntasks=%s\n", v)
	}
	if v, ok := job.Slurm["cpus_per_task"]; ok {
		fmt.Fprintf(b, "#SBATCH --cpus-per-task=%s\n", v)
	}
	if v, ok := job.Slurm["mem_total"]; ok {
		fmt.Fprintf(b, "#SBATCH --mem=%s\n", v)
	}
	if v, ok := job.Slurm["gpus"]; ok {
		fmt.Fprintf(b, "#SBATCH --gpus=%s\n", v)
	}
	if v, ok := job.Slurm["walltime"]; ok {
		fmt.Fprintf(b, "#SBATCH --time=%s\n", v)
	}
}
