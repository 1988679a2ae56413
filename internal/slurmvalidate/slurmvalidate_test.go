package slurmvalidate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/slurmvalidate"
)

func TestParseStorage(t *testing.T) {
	cases := map[string]int64{
		"10G":  10 * (1 << 30),
		"500m": 500 * (1 << 20),
		"1t":   1 << 40,
		"1024": 1024,
		"2gb":  2 * (1 << 30),
	}
	for in, want := range cases {
		got, err := slurmvalidate.ParseStorage(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseWalltime(t *testing.T) {
	cases := map[string]float64{
		"1-00:00:00": 86400,
		"01:30:00":   5400,
		"05:00":      300,
		"30":         1800,
	}
	for in, want := range cases {
		got, err := slurmvalidate.ParseWalltime(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseWalltimeRejectsGarbage(t *testing.T) {
	_, err := slurmvalidate.ParseWalltime("not-a-time:with:too:many:parts:here")
	require.Error(t, err)
}

func TestComputeCeilingTakesElementwiseMinimum(t *testing.T) {
	cluster := config.SlurmRules{Nodes: 10, Walltime: "20:00:00"}
	global := config.SlurmRules{Nodes: 5}

	ceiling, err := slurmvalidate.ComputeCeiling(cluster, global)
	require.NoError(t, err)
	require.Equal(t, 5, ceiling.Nodes) // global is stricter than cluster
	require.Equal(t, float64(10*3600), ceiling.Walltime) // default 10h is stricter than cluster's 20h
	require.Equal(t, slurmvalidate.DefaultMaxTasks, ceiling.Tasks) // untouched -> default
}

func TestValidateFlagsViolationsOnly(t *testing.T) {
	ceiling, err := slurmvalidate.ComputeCeiling(config.SlurmRules{Nodes: 4}, config.SlurmRules{})
	require.NoError(t, err)

	violations, err := slurmvalidate.Validate(slurmvalidate.Request{Nodes: 8, Tasks: 2}, ceiling)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, "nodes", violations[0].Field)
}

func TestValidateZeroFieldsNeverViolate(t *testing.T) {
	ceiling, err := slurmvalidate.ComputeCeiling(config.SlurmRules{}, config.SlurmRules{})
	require.NoError(t, err)

	violations, err := slurmvalidate.Validate(slurmvalidate.Request{}, ceiling)
	require.NoError(t, err)
	require.Empty(t, violations)
}
