package staging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/staging"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func TestFingerprintIsStablePerSourceIdentity(t *testing.T) {
	a, ok := staging.Fingerprint(store.Source{Kind: store.SourceGit, GitID: "repo-1"})
	require.True(t, ok)
	b, ok := staging.Fingerprint(store.Source{Kind: store.SourceGit, GitID: "repo-1"})
	require.True(t, ok)
	require.Equal(t, a, b)

	c, ok := staging.Fingerprint(store.Source{Kind: store.SourceGit, GitID: "repo-2"})
	require.True(t, ok)
	require.NotEqual(t, a, c)
}

func TestFingerprintDiffersByKind(t *testing.T) {
	git, _ := staging.Fingerprint(store.Source{Kind: store.SourceGit, GitID: "x"})
	local, _ := staging.Fingerprint(store.Source{Kind: store.SourceLocal, LocalPath: "/tmp/x"})
	require.NotEqual(t, git, local)
}

func TestFingerprintEmptySourceNotCacheable(t *testing.T) {
	_, ok := staging.Fingerprint(store.Source{Kind: store.SourceEmpty})
	require.False(t, ok)
}

func TestFingerprintLocalUsesBasenameOnly(t *testing.T) {
	a, _ := staging.Fingerprint(store.Source{Kind: store.SourceLocal, LocalPath: "/home/alice/data"})
	b, _ := staging.Fingerprint(store.Source{Kind: store.SourceLocal, LocalPath: "/home/bob/data"})
	require.Equal(t, a, b)
}
