package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/eventlog"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/maintainer"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/queue"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/scheduler"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

const discriminatorFake = "fake"

// fakeMaintainer ends after endAfter Maintain calls, or immediately on
// OnCancel, letting tests assert on admission/end-to-end behavior without a
// real SSH/Slurm backend.
type fakeMaintainer struct {
	endAfter int32

	mu        sync.Mutex
	state     maintainer.State
	maintains int32
	cancelled bool
}

func newFakeMaintainer(endAfter int32) maintainer.Constructor {
	return func(deps maintainer.Deps, job *store.Job) (maintainer.Maintainer, error) {
		return &fakeMaintainer{endAfter: endAfter, state: maintainer.StateQueued}, nil
	}
}

func (f *fakeMaintainer) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = maintainer.StateRunning
	return nil
}

func (f *fakeMaintainer) Maintain(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maintains++
	if f.maintains >= f.endAfter {
		f.state = maintainer.StateEnded
	}
	return nil
}

func (f *fakeMaintainer) OnCancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	f.state = maintainer.StateEnded
	return nil
}

func (f *fakeMaintainer) IsInit() bool { return true }
func (f *fakeMaintainer) IsEnd() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == maintainer.StateEnded || f.state == maintainer.StateFailed
}
func (f *fakeMaintainer) JobOnHPC() bool { return true }
func (f *fakeMaintainer) State() maintainer.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeMaintainer) DumpEvents(ctx context.Context, offset, limit int) ([]*store.Event, error) {
	return nil, nil
}
func (f *fakeMaintainer) DumpLogs(ctx context.Context, offset, limit int) ([]*store.Log, error) {
	return nil, nil
}

func testConfig(capacity int) *config.Config {
	return &config.Config{
		HPCConfigMap: map[string]config.HPCConfig{
			"expanse": {Name: "expanse", RootPath: "/scratch", JobPoolCapacity: capacity},
		},
	}
}

func withScheduler(t *testing.T, cfg *config.Config, ctor maintainer.Constructor, admit, maintain time.Duration, action func(s *scheduler.Scheduler, jobs *store.MemoryStore)) {
	maintainer.Register(discriminatorFake, ctor)

	db, err := miniredis.Run()
	require.NoError(t, err)
	defer db.Close()

	client := redis.NewClient(&redis.Options{Addr: db.Addr()})
	jobs := store.NewMemoryStore()
	q := queue.New(client, jobs)
	events := eventlog.New(jobs, jobs, jobs)

	deps := func(hpc string) (maintainer.Deps, error) { return maintainer.Deps{}, nil }

	s := scheduler.New(cfg, jobs, q, events, deps, nil, admit, maintain)
	action(s, jobs)
}

func TestPushJobToQueuePersistsAndEnqueues(t *testing.T) {
	withScheduler(t, testConfig(1), newFakeMaintainer(1), time.Hour, time.Hour, func(s *scheduler.Scheduler, jobs *store.MemoryStore) {
		ctx := context.Background()
		job := &store.Job{ID: "job-1", HPC: "expanse", Maintainer: discriminatorFake}
		require.NoError(t, s.PushJobToQueue(ctx, job))

		got, err := jobs.GetJob(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, "job-1", got.ID)

		events, err := jobs.ListEvents(ctx, "job-1", 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, store.EventJobQueued, events[0].Type)
	})
}

func TestAdmittedJobRunsToEnd(t *testing.T) {
	withScheduler(t, testConfig(1), newFakeMaintainer(2), 10*time.Millisecond, 10*time.Millisecond, func(s *scheduler.Scheduler, jobs *store.MemoryStore) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		job := &store.Job{ID: "job-1", HPC: "expanse", Maintainer: discriminatorFake}
		require.NoError(t, s.PushJobToQueue(ctx, job))

		s.Start(ctx)
		defer s.Destroy(time.Second)

		require.Eventually(t, func() bool {
			events, err := jobs.ListEvents(ctx, "job-1", 0, 10)
			if err != nil {
				return false
			}
			for _, e := range events {
				if e.Type == store.EventJobRegistered {
					return true
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			return s.JobPoolCount("expanse") == 0
		}, time.Second, 10*time.Millisecond)
	})
}

func TestAdmissionRespectsCapacity(t *testing.T) {
	var admitted int32
	ctor := func(deps maintainer.Deps, job *store.Job) (maintainer.Maintainer, error) {
		atomic.AddInt32(&admitted, 1)
		return &fakeMaintainer{endAfter: 1000000, state: maintainer.StateQueued}, nil
	}

	withScheduler(t, testConfig(1), ctor, 10*time.Millisecond, time.Hour, func(s *scheduler.Scheduler, jobs *store.MemoryStore) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		require.NoError(t, s.PushJobToQueue(ctx, &store.Job{ID: "a", HPC: "expanse", Maintainer: discriminatorFake}))
		require.NoError(t, s.PushJobToQueue(ctx, &store.Job{ID: "b", HPC: "expanse", Maintainer: discriminatorFake}))

		s.Start(ctx)
		defer s.Destroy(time.Second)

		require.Eventually(t, func() bool {
			return s.JobPoolCount("expanse") == 1
		}, time.Second, 10*time.Millisecond)

		require.EqualValues(t, 1, atomic.LoadInt32(&admitted))
	})
}

func TestCancelJobSignalsRunningWorker(t *testing.T) {
	withScheduler(t, testConfig(1), newFakeMaintainer(1000000), 10*time.Millisecond, 10*time.Millisecond, func(s *scheduler.Scheduler, jobs *store.MemoryStore) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, s.PushJobToQueue(ctx, &store.Job{ID: "job-1", HPC: "expanse", Maintainer: discriminatorFake}))
		s.Start(ctx)
		defer s.Destroy(time.Second)

		require.Eventually(t, func() bool {
			return s.JobPoolCount("expanse") == 1
		}, time.Second, 10*time.Millisecond)

		require.True(t, s.CancelJob("job-1"))

		require.Eventually(t, func() bool {
			return s.JobPoolCount("expanse") == 0
		}, time.Second, 10*time.Millisecond)
	})
}

func TestCancelJobReturnsFalseForUnknownJob(t *testing.T) {
	withScheduler(t, testConfig(1), newFakeMaintainer(1), time.Hour, time.Hour, func(s *scheduler.Scheduler, jobs *store.MemoryStore) {
		require.False(t, s.CancelJob("does-not-exist"))
	})
}
