// Package queue implements the Per-Cluster Queue component (spec §4.E): a
// durable FIFO of job ids per HPC cluster, backed by Redis RPUSH/LPOP, with
// job hydration delegated to internal/store. The RPUSH/LPOP-as-FIFO and
// prefix-key conventions follow
// armadaproject-armada/internal/armada/repository/job.go's
// jobQueuePrefix/ZAdd pipeline idiom, adapted from a priority (ZADD) queue
// to a plain admission-order FIFO since spec §4.E has no per-job priority.
package queue

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

const queueKeyPrefix = "cybergis:queue:"

func queueKey(hpc string) string { return queueKeyPrefix + hpc }

// Queue is a per-cluster durable FIFO of job ids.
type Queue struct {
	redis *redis.Client
	jobs  store.JobStore
}

// New returns a Queue that enqueues into client and hydrates popped ids
// through jobs.
func New(client *redis.Client, jobs store.JobStore) *Queue {
	return &Queue{redis: client, jobs: jobs}
}

// Push appends jobID to the tail of cluster's queue.
func (q *Queue) Push(ctx context.Context, hpc, jobID string) error {
	if err := q.redis.RPush(queueKey(hpc), jobID).Err(); err != nil {
		return errors.Wrapf(err, "pushing job %s onto %s queue", jobID, hpc)
	}
	return nil
}

// Len reports the number of queued ids for cluster hpc.
func (q *Queue) Len(ctx context.Context, hpc string) (int64, error) {
	n, err := q.redis.LLen(queueKey(hpc)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "measuring %s queue length", hpc)
	}
	return n, nil
}

// Pop removes and hydrates the head job of cluster hpc's queue. It returns
// (nil, nil) when the queue is empty — this is a poll, not a blocking
// operation, matching the scheduler's periodic-ticker admission model
// (spec §4.F) rather than Redis's BLPOP.
//
// A popped id whose Job row no longer exists (deleted between enqueue and
// admission) is silently skipped and the next id is tried, per spec §4.E's
// edge-case note on stale queue entries.
func (q *Queue) Pop(ctx context.Context, hpc string) (*store.Job, error) {
	for {
		id, err := q.redis.LPop(queueKey(hpc)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "popping from %s queue", hpc)
		}

		job, err := q.jobs.GetJob(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "hydrating job %s", id)
		}
		return job, nil
	}
}

// Remove deletes jobID from cluster hpc's queue if still present, used when
// a caller cancels a queued (not yet admitted) job. Cancellation of queued
// jobs is disabled at the scheduler layer per spec §9's open-question
// resolution (see DESIGN.md); the scheduler never calls Remove, which is
// left for an operator to drop a queued job directly.
func (q *Queue) Remove(ctx context.Context, hpc, jobID string) error {
	err := q.redis.LRem(queueKey(hpc), 0, jobID).Err()
	if err != nil {
		return errors.Wrapf(err, "removing job %s from %s queue", jobID, hpc)
	}
	return nil
}
