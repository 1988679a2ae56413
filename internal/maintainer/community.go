package maintainer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// DiscriminatorCommunity is the maintainer discriminator for a community
// contribution job: a Git-sourced executable wrapped in a Singularity
// container, per spec §4.D's "variants of maintainer differ only in how
// init() builds the submission" clause.
const DiscriminatorCommunity = "community_contribution"

func init() {
	Register(DiscriminatorCommunity, newCommunityMaintainer)
}

// ErrExecutableMustBeGit is returned when a community_contribution job's
// executable source is not a Git source; the variant requires the
// executable manifest a Git-sourced folder carries.
var ErrExecutableMustBeGit = errors.New("community_contribution maintainer requires a git executable source")

// communityMaintainer runs a job as a Singularity-wrapped sbatch submission,
// injecting the executable manifest's pre/execution/post stages into a
// templated script, optionally in CVMFS mode. It shares its session,
// credential, state, and polling machinery with plainMaintainer through the
// embedded base; only Init's script construction and the Git-source
// requirement differ.
type communityMaintainer struct {
	base
}

func newCommunityMaintainer(deps Deps, job *store.Job) (Maintainer, error) {
	if job.ExecutableSource == nil || job.ExecutableSource.Kind != store.SourceGit {
		return nil, ErrExecutableMustBeGit
	}
	return &communityMaintainer{base: newBase(deps, job)}, nil
}

// parseManifest reads the executable manifest out of job.Param["manifest"]
// (YAML text, committed alongside the Git-sourced executable per the
// GLOSSARY's "Executable manifest" entry).
func parseManifest(job *store.Job) (*store.ExecutableManifest, error) {
	raw, ok := job.Param["manifest"]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.New("community_contribution job is missing its executable manifest")
	}
	var manifest store.ExecutableManifest
	if err := yaml.Unmarshal([]byte(raw), &manifest); err != nil {
		return nil, errors.Wrap(err, "parsing executable manifest")
	}
	if manifest.Container.Image == "" {
		return nil, errors.New("executable manifest is missing container.image")
	}
	return &manifest, nil
}

// Init stages the executable (cached, since it is always a Git source) and
// optional data folder, renders the container-wrapped sbatch script from the
// executable manifest, and submits it.
func (m *communityMaintainer) Init(ctx context.Context) error {
	m.setState(StateInitializing)
	defer func() {
		m.mu.Lock()
		m.initDone = true
		m.mu.Unlock()
	}()

	manifest, err := parseManifest(m.job)
	if err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "parsing executable manifest")
	}

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

	// The executable source is always Git (enforced in the constructor), so
	// it is always staged through the content-addressed cache.
	if err := m.deps.Staging.CachedStage(ctx, sess, m.deps.HPC.Name, *m.job.ExecutableSource, execDir); err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "staging executable folder")
	}
	folderID, err := m.persistFolder(ctx, execDir)
	if err != nil {
		return m.fail(ctx, store.EventJobInitError, err, "persisting executable folder")
	}
	m.job.RemoteExecutableFolderID = &folderID
	_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventSlurmUploadExecutable, execDir)

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
	script := buildSingularitySbatchScript(m.job, manifest, m.deps.HPC.Kernel.InitLines, execDir, dataDir, resultDir)
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

// Maintain polls squeue for the submitted job, identically to the plain
// variant, then publishes the result folder with the manifest's declared
// default file sorted first rather than a job.Param lookup.
func (m *communityMaintainer) Maintain(ctx context.Context) error {
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

	manifest, _ := parseManifest(m.job)
	defaultFile := ""
	if manifest != nil {
		defaultFile = manifest.DefaultResultFile
	}
	if err := m.publishResultFolder(ctx, sess, defaultFile); err != nil {
		_ = m.deps.Events.EmitEvent(ctx, m.job.ID, store.EventJobRetry, errors.Wrap(err, "publishing result folder content").Error())
	}

	// See plainMaintainer.Maintain: m.job never observes the InitializedAt
	// that JOB_INIT persisted onto a separately-reloaded copy, so it must be
	// pulled back before this write or it gets clobbered to NULL.
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

// buildSingularitySbatchScript renders the #SBATCH directive block plus a
// Singularity-wrapped body: the cluster's kernel init lines, then the
// manifest's pre/execution/post stages each run inside `singularity exec`,
// binding the job's exec/data/result directories. In CVMFS mode /cvmfs is
// additionally bound into the container; the image path is used exactly as
// the manifest gives it.
func buildSingularitySbatchScript(job *store.Job, manifest *store.ExecutableManifest, kernelInitLines []string, execDir, dataDir, resultDir string) string {
	var b strings.Builder
	renderSbatchDirectives(&b, job, resultDir)

	for _, line := range kernelInitLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	for k, v := range job.Env {
		fmt.Fprintf(&b, "export %s=%s\n", k, v)
	}

	image := manifest.Container.Image
	bind := fmt.Sprintf("--bind %s:/exec --bind %s:/data --bind %s:/result", execDir, dataDir, resultDir)
	singularity := "singularity exec"
	if manifest.Container.CVMFSMode {
		singularity = "singularity exec --bind /cvmfs:/cvmfs"
	}

	writeStage := func(stage []string) {
		for _, cmd := range stage {
			fmt.Fprintf(&b, "%s %s %s /bin/bash -c '%s'\n", singularity, bind, image, cmd)
		}
	}

	writeStage(manifest.Pre)
	writeStage(manifest.Execution)
	writeStage(manifest.Post)

	return b.String()
}
