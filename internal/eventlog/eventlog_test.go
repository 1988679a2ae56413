package eventlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/eventlog"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

func newEmitter(t *testing.T) (*eventlog.Emitter, *store.MemoryStore) {
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateJob(context.Background(), &store.Job{ID: "job-1", CreatedAt: time.Now()}))
	return eventlog.New(s, s, s), s
}

func TestEmitEventJobInitSetsInitializedAt(t *testing.T) {
	e, s := newEmitter(t)
	require.NoError(t, e.EmitEvent(context.Background(), "job-1", store.EventJobInit, "starting"))

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, j.InitializedAt)
}

func TestEmitEventJobFailedSetsFinishedAndFailedFlag(t *testing.T) {
	e, s := newEmitter(t)
	require.NoError(t, e.EmitEvent(context.Background(), "job-1", store.EventJobFailed, "oom"))

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, j.FinishedAt)
	require.True(t, j.IsFailed)
}

func TestEmitEventOtherTypesDoNotTouchTimestamps(t *testing.T) {
	e, s := newEmitter(t)
	require.NoError(t, e.EmitEvent(context.Background(), "job-1", store.EventJobRegistered, "admitted"))

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Nil(t, j.QueuedAt)
	require.Nil(t, j.InitializedAt)
	require.Nil(t, j.FinishedAt)
}

func TestDumpEventsDefaultsLimitWhenNonPositive(t *testing.T) {
	e, _ := newEmitter(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.EmitEvent(context.Background(), "job-1", store.EventJobRetry, "retry"))
	}

	events, err := e.DumpEvents(context.Background(), "job-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestEmitLogTruncatesLongMessages(t *testing.T) {
	e, s := newEmitter(t)
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, e.EmitLog(context.Background(), "job-1", string(long)))

	logs, err := s.ListLogs(context.Background(), "job-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Len(t, logs[0].Message, 500)
}
