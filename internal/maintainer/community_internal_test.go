package maintainer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func TestParseManifestParsesContainerAndStages(t *testing.T) {
	job := &store.Job{Param: map[string]string{"manifest": `
container:
  image: /images/model.sif
  cvmfs_mode: true
pre:
  - echo pre
execution:
  - python run.py
post:
  - echo post
default_result_file: output.csv
`}}

	manifest, err := parseManifest(job)
	require.NoError(t, err)
	require.Equal(t, "/images/model.sif", manifest.Container.Image)
	require.True(t, manifest.Container.CVMFSMode)
	require.Equal(t, []string{"echo pre"}, manifest.Pre)
	require.Equal(t, []string{"python run.py"}, manifest.Execution)
	require.Equal(t, []string{"echo post"}, manifest.Post)
	require.Equal(t, "output.csv", manifest.DefaultResultFile)
}

func TestParseManifestErrorsOnMissingManifest(t *testing.T) {
	_, err := parseManifest(&store.Job{Param: map[string]string{}})
	require.Error(t, err)
}

func TestParseManifestErrorsOnMissingImage(t *testing.T) {
	_, err := parseManifest(&store.Job{Param: map[string]string{"manifest": "pre: []\n"}})
	require.Error(t, err)
}

func TestBuildSingularitySbatchScriptWrapsEachStage(t *testing.T) {
	job := &store.Job{Slurm: map[string]string{"walltime": "00:30:00"}}
	manifest := &store.ExecutableManifest{
		Pre:       []string{"echo pre"},
		Execution: []string{"python run.py"},
		Post:      []string{"echo post"},
	}
	manifest.Container.Image = "/images/model.sif"

	script := buildSingularitySbatchScript(job, manifest, []string{"module load singularity"}, "/scratch/j/exec", "/scratch/j/data", "/scratch/j/result")

	require.Contains(t, script, "module load singularity")
	require.Contains(t, script, "singularity exec --bind /scratch/j/exec:/exec --bind /scratch/j/data:/data --bind /scratch/j/result:/result /images/model.sif /bin/bash -c 'echo pre'")
	require.Contains(t, script, "'python run.py'")
	require.Contains(t, script, "'echo post'")
	require.True(t, strings.Index(script, "echo pre") < strings.Index(script, "python run.py"))
	require.True(t, strings.Index(script, "python run.py") < strings.Index(script, "echo post"))
}

func TestBuildSingularitySbatchScriptCVMFSModeBindsCVMFS(t *testing.T) {
	manifest := &store.ExecutableManifest{Execution: []string{"run"}}
	manifest.Container.Image = "/cvmfs/images/model.sif"
	manifest.Container.CVMFSMode = true

	script := buildSingularitySbatchScript(&store.Job{}, manifest, nil, "/e", "/d", "/r")
	require.Contains(t, script, "singularity exec --bind /cvmfs:/cvmfs --bind /e:/exec --bind /d:/data --bind /r:/result")
}

func TestNewCommunityMaintainerRejectsNonGitExecutableSource(t *testing.T) {
	job := &store.Job{
		ID:               "job-1",
		Maintainer:       DiscriminatorCommunity,
		ExecutableSource: &store.Source{Kind: store.SourceLocal, LocalPath: "/tmp/x"},
	}
	_, err := New(Deps{}, job)
	require.ErrorIs(t, err, ErrExecutableMustBeGit)
}

func TestNewCommunityMaintainerAcceptsGitExecutableSource(t *testing.T) {
	job := &store.Job{
		ID:               "job-1",
		Maintainer:       DiscriminatorCommunity,
		ExecutableSource: &store.Source{Kind: store.SourceGit, GitID: "hello"},
	}
	m, err := New(Deps{}, job)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, StateQueued, m.State())
}
