package maintainer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/maintainer"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func TestNewReturnsPlainMaintainerForPlainDiscriminator(t *testing.T) {
	job := &store.Job{ID: "job-1", Maintainer: maintainer.DiscriminatorPlain}
	m, err := maintainer.New(maintainer.Deps{}, job)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, maintainer.StateQueued, m.State())
	require.False(t, m.IsInit())
	require.False(t, m.IsEnd())
	require.False(t, m.JobOnHPC())
}

func TestNewErrorsOnUnknownDiscriminator(t *testing.T) {
	job := &store.Job{ID: "job-1", Maintainer: "does-not-exist"}
	_, err := maintainer.New(maintainer.Deps{}, job)
	require.Error(t, err)
}

func TestIsEndFalseForFreshMaintainer(t *testing.T) {
	job := &store.Job{ID: "job-1", Maintainer: maintainer.DiscriminatorPlain}
	m, err := maintainer.New(maintainer.Deps{}, job)
	require.NoError(t, err)
	require.False(t, m.IsEnd())
	_ = context.Background()
}
