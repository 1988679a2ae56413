package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func TestMemoryStoreJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	j := &store.Job{ID: "job-1", UserID: "alice", HPC: "expanse", CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, j))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.UserID)

	got.IsFailed = true
	require.NoError(t, s.UpdateJob(ctx, got))

	refetched, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, refetched.IsFailed)

	require.NoError(t, s.DeleteJob(ctx, "job-1"))
	_, err = s.GetJob(ctx, "job-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreListJobsByUserSortedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	require.NoError(t, s.CreateJob(ctx, &store.Job{ID: "b", UserID: "bob", CreatedAt: newer}))
	require.NoError(t, s.CreateJob(ctx, &store.Job{ID: "a", UserID: "bob", CreatedAt: older}))
	require.NoError(t, s.CreateJob(ctx, &store.Job{ID: "c", UserID: "carol", CreatedAt: newer}))

	jobs, err := s.ListJobsByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "a", jobs[0].ID)
	require.Equal(t, "b", jobs[1].ID)
}

func TestTruncateMessage(t *testing.T) {
	short := "hello"
	require.Equal(t, short, store.TruncateMessage(short))

	long := strings.Repeat("x", 600)
	truncated := store.TruncateMessage(long)
	require.Len(t, truncated, 500)
	require.True(t, strings.HasSuffix(truncated, "...[truncated]"))
}

func TestMemoryStoreEventLogPagination(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendEvent(ctx, &store.Event{JobID: "job-1", Type: store.EventJobQueued}))
	}

	page, err := s.ListEvents(ctx, "job-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page, err = s.ListEvents(ctx, "job-1", 10, 2)
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestMemoryStoreAllowDenyLists(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	s.SetDenied("expanse", "mallory", true)
	denied, err := s.IsDenied(ctx, "expanse", "mallory")
	require.NoError(t, err)
	require.True(t, denied)

	allowed, err := s.IsAllowed(ctx, "expanse", "mallory")
	require.NoError(t, err)
	require.False(t, allowed)
}
