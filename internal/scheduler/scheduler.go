// Package scheduler implements the Supervisor Scheduler component (spec
// §4.F): the per-cluster admission loop that drains the durable queue up to
// each cluster's job-pool capacity, spawns one maintainer per admitted job,
// and drives that maintainer's Init/Maintain/OnCancel lifecycle until it
// reaches a terminal state.
//
// The admission ticker and per-job worker goroutine are grounded on
// gwennacupicop-jennah/cmd/worker/service/pollers.go's
// StartLeaseReconciler/JobPoller pair: a periodic reconcile tick that claims
// new work, and one ticker-driven goroutine per active job, registered in a
// mutex-guarded map and torn down through a stop channel + sync.Once.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/eventlog"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/maintainer"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/queue"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// DepsFactory builds the maintainer.Deps a newly-admitted job for cluster
// hpc should be constructed with (its HPCContext, shared/private pools,
// staging engine, and so on are all cluster-scoped).
type DepsFactory func(hpc string) (maintainer.Deps, error)

// clusterState tracks one cluster's admission bookkeeping.
type clusterState struct {
	mu      sync.Mutex
	running int
}

// jobWorker is the per-job goroutine driving one maintainer to completion.
type jobWorker struct {
	jobID      string
	maintainer maintainer.Maintainer
	cancelCh   chan struct{}
	stopOnce   sync.Once
}

func (w *jobWorker) requestCancel() {
	w.stopOnce.Do(func() { close(w.cancelCh) })
}

// Scheduler drains each configured cluster's queue and runs admitted jobs'
// maintainers to completion.
type Scheduler struct {
	cfg    *config.Config
	jobs   store.JobStore
	queue  *queue.Queue
	events *eventlog.Emitter
	deps   DepsFactory
	logger *zap.Logger

	admitInterval    time.Duration
	maintainInterval time.Duration

	clustersMu sync.Mutex
	clusters   map[string]*clusterState

	workersMu sync.Mutex
	workers   map[string]*jobWorker // jobID -> worker

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Scheduler. admitInterval paces each cluster's admission
// ticker; maintainInterval paces each running job's Maintain poll.
func New(cfg *config.Config, jobs store.JobStore, q *queue.Queue, events *eventlog.Emitter, deps DepsFactory, logger *zap.Logger, admitInterval, maintainInterval time.Duration) *Scheduler {
	return &Scheduler{
		cfg:              cfg,
		jobs:             jobs,
		queue:            q,
		events:           events,
		deps:             deps,
		logger:           logger,
		admitInterval:    admitInterval,
		maintainInterval: maintainInterval,
		clusters:         make(map[string]*clusterState),
		workers:          make(map[string]*jobWorker),
		stopCh:           make(chan struct{}),
	}
}

func (s *Scheduler) clusterFor(hpc string) *clusterState {
	s.clustersMu.Lock()
	defer s.clustersMu.Unlock()
	c, ok := s.clusters[hpc]
	if !ok {
		c = &clusterState{}
		s.clusters[hpc] = c
	}
	return c
}

// Start launches one admission-ticker goroutine per configured cluster.
// It returns immediately; call Destroy to stop all of them.
func (s *Scheduler) Start(ctx context.Context) {
	for name := range s.cfg.HPCConfigMap {
		hpc := name
		s.wg.Add(1)
		go s.admissionLoop(ctx, hpc)
	}
}

func (s *Scheduler) admissionLoop(ctx context.Context, hpc string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.admitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.admitOnce(ctx, hpc)
		}
	}
}

// admitOnce drains hpc's queue while capacity remains, spawning one worker
// goroutine per admitted job.
func (s *Scheduler) admitOnce(ctx context.Context, hpc string) {
	capacity := s.cfg.Capacity(hpc)
	cs := s.clusterFor(hpc)

	for {
		cs.mu.Lock()
		room := capacity - cs.running
		cs.mu.Unlock()
		if room <= 0 {
			return
		}

		job, err := s.queue.Pop(ctx, hpc)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("popping job from queue", zap.String("hpc", hpc), zap.Error(err))
			}
			return
		}
		if job == nil {
			return
		}

		cs.mu.Lock()
		cs.running++
		cs.mu.Unlock()

		s.admit(ctx, hpc, job, cs)
	}
}

// admit constructs job's maintainer and, on success, spawns its worker
// goroutine. A construction failure emits JOB_INIT_ERROR directly (the
// maintainer never came into being, so it cannot emit the event itself)
// and releases the admission slot without ever reaching Init.
func (s *Scheduler) admit(ctx context.Context, hpc string, job *store.Job, cs *clusterState) {
	deps, err := s.deps(hpc)
	if err != nil {
		s.failAdmission(ctx, job, cs, err)
		return
	}

	m, err := maintainer.New(deps, job)
	if err != nil {
		s.failAdmission(ctx, job, cs, err)
		return
	}

	_ = s.events.EmitEvent(ctx, job.ID, store.EventJobRegistered, "admitted to cluster "+hpc)

	worker := &jobWorker{jobID: job.ID, maintainer: m, cancelCh: make(chan struct{})}
	s.workersMu.Lock()
	s.workers[job.ID] = worker
	s.workersMu.Unlock()

	s.wg.Add(1)
	go s.runWorker(ctx, worker, cs)
}

func (s *Scheduler) failAdmission(ctx context.Context, job *store.Job, cs *clusterState, cause error) {
	_ = s.events.EmitEvent(ctx, job.ID, store.EventJobInitError, cause.Error())
	cs.mu.Lock()
	cs.running--
	cs.mu.Unlock()
}

// runWorker drives one maintainer from Init through Maintain polls until it
// reaches a terminal state or a cancellation request arrives, cooperatively
// yielding between polls so a cancel is observed while waiting for the next
// Maintain call. A cancel that arrives during Init or during a Maintain call
// is observed only after that call returns.
func (s *Scheduler) runWorker(ctx context.Context, w *jobWorker, cs *clusterState) {
	defer s.wg.Done()
	defer func() {
		s.workersMu.Lock()
		delete(s.workers, w.jobID)
		s.workersMu.Unlock()

		cs.mu.Lock()
		cs.running--
		cs.mu.Unlock()
	}()

	if err := w.maintainer.Init(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn("maintainer init failed", zap.String("job", w.jobID), zap.Error(err))
		}
		return
	}

	ticker := time.NewTicker(s.maintainInterval)
	defer ticker.Stop()

	for !w.maintainer.IsEnd() {
		select {
		case <-ctx.Done():
			return
		case <-w.cancelCh:
			if err := w.maintainer.OnCancel(ctx); err != nil && s.logger != nil {
				s.logger.Warn("maintainer cancel failed", zap.String("job", w.jobID), zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := w.maintainer.Maintain(ctx); err != nil && s.logger != nil {
				s.logger.Warn("maintainer step failed", zap.String("job", w.jobID), zap.Error(err))
			}
		}
	}
}

// PushJobToQueue persists job and appends it to its cluster's durable
// queue, emitting JOB_QUEUED. The job is not yet admitted: it becomes
// visible to a worker only on the next admission tick for job.HPC.
func (s *Scheduler) PushJobToQueue(ctx context.Context, job *store.Job) error {
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return err
	}
	if err := s.queue.Push(ctx, job.HPC, job.ID); err != nil {
		return err
	}
	return s.events.EmitEvent(ctx, job.ID, store.EventJobQueued, "enqueued for cluster "+job.HPC)
}

// CancelJob requests cancellation of an admitted (running) job. Cancelling
// a job that has not yet been admitted is not supported: per spec §9's
// open-question resolution (see DESIGN.md), a queued job has no maintainer
// to cancel and is simply left to be admitted and run to completion, or the
// operator can remove it from the queue directly via queue.Queue.Remove.
func (s *Scheduler) CancelJob(jobID string) bool {
	s.workersMu.Lock()
	w, ok := s.workers[jobID]
	s.workersMu.Unlock()
	if !ok {
		return false
	}
	w.requestCancel()
	return true
}

// JobPoolCount reports how many jobs are currently admitted against hpc's
// capacity, for status/metrics endpoints.
func (s *Scheduler) JobPoolCount(hpc string) int {
	cs := s.clusterFor(hpc)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.running
}

// Destroy stops every admission loop and waits up to grace for in-flight
// worker goroutines to return, mirroring the teacher's server.Shutdown(ctx)
// grace-period pattern.
func (s *Scheduler) Destroy(grace time.Duration) {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		if s.logger != nil {
			s.logger.Warn("scheduler shutdown grace period elapsed with workers still running")
		}
	}
}
