package maintainer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// DiscriminatorPlain is the maintainer discriminator for a bare Slurm job
// with no community-contribution container/manifest wrapping.
const DiscriminatorPlain = "plain"

func init() {
	Register(DiscriminatorPlain, newPlainMaintainer)
}

// plainMaintainer runs a job as a bare sbatch submission with no container
// wrapping: upload executable/data folders, submit, poll squeue, collect the
// result folder. Everything but Init/Maintain's script-building is shared
// with communityMaintainer through the embedded base.
type plainMaintainer struct {
	base
}

func newPlainMaintainer(deps Deps, job *store.Job) (Maintainer, error) {
	return &plainMaintainer{base: newBase(deps, job)}, nil
}

// Init stages the job's folders and submits it to Slurm via sbatch.
func (m *plainMaintainer) Init(ctx context.Context) error {
	m.setState(StateInitializing)
	defer func() {
		m.mu.Lock()
		m.initDone = true
		m.mu.Unlock()
	}()

	sess, release, err := m.session(ctx)
	if err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "acquiring ssh session")
	}
	defer release()

	root := m.deps.HPC.Config.RootPath
	execDir := path.Join(root, "jobs", m.job.ID, "exec")
	dataDir := path.Join(root, "jobs", m.job.ID, "data")
	resultDir := path.Join(root, "jobs", m.job.ID, "result")
	m.resultDir = resultDir

	if err := sess.Mkdir(ctx, resultDir); err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "creating result dir")
	}
	resultFolderID, err := m.persistFolder(ctx, resultDir)
	if err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "persisting result folder")
	}
	m.job.RemoteResultFolderID = &resultFolderID
	_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventSlurmCreateResult, resultDir)

	if m.job.ExecutableSource != nil {
		if err := m.deps.Staging.CachedStage(ctx, sess, m.deps.HPC.Name, *m.job.ExecutableSource, execDir); err != nil {
			return m.fail(ctx, store.EventJobInitError, err, "staging executable folder")
		}
		folderID, err := m.persistFolder(ctx, execDir)
		if err != nil {
			return m.fail(ctx, store.EventJobInitError, err, "persisting executable folder")
		}
		m.job.RemoteExecutableFolderID = &folderID
		_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventSlurmUploadExecutable, execDir)
	}
	if m.job.DataSource != nil {
		if err := m.deps.Staging.CachedStage(ctx, sess, m.deps.HPC.Name, *m.job.DataSource, dataDir); err != nil {
			return m.fail(ctx, store.EventJobInitError, err, "staging data folder")
		}
		folderID, err := m.persistFolder(ctx, dataDir)
		if err != nil {
			return m.fail(ctx, store.EventJobInitError, err, "persisting data folder")
		}
		m.job.RemoteDataFolderID = &folderID
		_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventSlurmUploadData, dataDir)
	}

	sbatchPath := path.Join(root, "jobs", m.job.ID, "run.sbatch")
	script := buildSbatchScript(m.job, resultDir)
	if err := retry.Do(func() error {
		return sess.Upload(ctx, strings.NewReader(script), sbatchPath)
	}, remoteOpBackoff...); err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "uploading sbatch script")
	}

	var sbatchOut sshsession.Result
	if err := retry.Do(func() error {
		var execErr error
		sbatchOut, execErr = sess.MustExec(ctx, fmt.Sprintf("sbatch --parsable %s", sbatchPath))
		return execErr
	}, remoteOpBackoff...); err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "submitting sbatch job")
	}

	jobID := strings.TrimSpace(strings.Split(sbatchOut.Stdout, ";")[0])
	m.mu.Lock()
	m.slurmJobID = jobID
	m.mu.Unlock()

	if err := m.deps.Store.UpdateJob(ctx, m.job); err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "persisting job after submission")
	}

	_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventJobInit, fmt.Sprintf("submitted as slurm job %s", jobID))
	m.setState(StateSubmitted)
	return nil
}

// Maintain polls squeue for the submitted job and advances state on
// completion; on completion it collects usage counters and publishes the
// result folder's immediate children to the result-folder content cache.
func (m *plainMaintainer) Maintain(ctx context.Context) error {
	if m.State() == StateSubmitted {
		m.setState(StateRunning)
	}

	sess, release, err := m.session(ctx)
	if err != nil {
		return errors.Wrap(err, "acquiring ssh session")
	}
	defer release()

	status, err := m.pollStatus(ctx, sess)
	if err != nil {
		return errors.Wrap(err, "polling job status")
	}

	done, failed := classify(status)
	if !done {
		return nil
	}

	if failed {
		stderr, _ := m.tailFile(ctx, sess, path.Join(m.resultDir, "stderr.log"))
		_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventJobFailed, fmt.Sprintf("slurm job %s ended in status %s: %s", m.slurmJobID, status, stderr))
		m.setState(StateFailed)
		return nil
	}

	m.setState(StateCollecting)

	m.collectUsage(ctx, sess)

	if err := m.publishResultFolder(ctx, sess, m.job.Param["default_result_file"]); err != nil {
		// A failed listing does not fail the job: the job itself completed
		// successfully on Slurm, only the bookkeeping side-channel failed.
		_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventJobRetry, errors.Wrap(err, "publishing result folder content").Error())
	}

	// JOB_INIT already persisted InitializedAt onto a freshly-reloaded copy
	// of this job (eventlog.touchJob), which m.job never saw; reload those
	// lifecycle fields before writing the usage counters below so this
	// write doesn't clobber them back to NULL.
	if err := m.refreshLifecycleFields(ctx); err != nil {
		return err
	}
	if err := m.deps.Store.UpdateJob(ctx, m.job); err != nil {
		return errors.Wrap(err, "persisting job usage counters")
	}

	_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventJobEnded, fmt.Sprintf("slurm job %s completed with status %s", m.slurmJobID, status))
	m.setState(StateEnded)
	return nil
}

// buildSbatchScript renders the #SBATCH directive block plus the job's raw
// command, following WriteSbatchFile's line-by-line construction.
func buildSbatchScript(job *store.Job, resultDir string) string {
	var b strings.Builder
	renderSbatchDirectives(&b, job, resultDir)

	for k, v := range job.Env {
		fmt.Fprintf(&b, "export %s=%s\n", k, v)
	}

	command, ok := job.Param["command"]
	if !ok {
		command = "true"
	}
	b.WriteString(command)
	b.WriteString("\n")
	return b.String()
}
