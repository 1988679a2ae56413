package maintainer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func TestClassifyCompletedCodesAreDoneNotFailed(t *testing.T) {
	for _, code := range []string{"C", "CD", "UNKNOWN"} {
		done, failed := classify(code)
		require.True(t, done, code)
		require.False(t, failed, code)
	}
}

func TestClassifyFailedCodesAreDoneAndFailed(t *testing.T) {
	for _, code := range []string{"F", "NF", "ERROR"} {
		done, failed := classify(code)
		require.True(t, done, code)
		require.True(t, failed, code)
	}
}

func TestClassifyRunningCodeIsNeitherDoneNorFailed(t *testing.T) {
	for _, code := range []string{"R", "PD", "CG"} {
		done, failed := classify(code)
		require.False(t, done, code)
		require.False(t, failed, code)
	}
}

func TestParseSlurmBytesSuffixes(t *testing.T) {
	cases := map[string]int64{
		"1024": 1024,
		"512K": 512 * 1024,
		"2G":   2 * 1024 * 1024 * 1024,
		"":     0,
	}
	for in, want := range cases {
		got, ok := parseSlurmBytes(in)
		if in == "" {
			require.False(t, ok)
			continue
		}
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
}

func TestBuildSbatchScriptIncludesDirectivesAndCommand(t *testing.T) {
	job := &store.Job{
		Slurm: map[string]string{"nodes": "2", "walltime": "01:00:00"},
		Env:   map[string]string{"FOO": "bar"},
		Param: map[string]string{"command": "python run.py"},
	}
	script := buildSbatchScript(job, "/scratch/job-1/result")

	require.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	require.Contains(t, script, "#SBATCH --nodes=2")
	require.Contains(t, script, "#SBATCH --time=01:00:00")
	require.Contains(t, script, "export FOO=bar")
	require.Contains(t, script, "python run.py")
}

func TestBuildSbatchScriptDefaultsCommandToTrue(t *testing.T) {
	script := buildSbatchScript(&store.Job{}, "/scratch/result")
	require.Contains(t, script, "\ntrue\n")
}
