// Package eventlog implements the Event/Log Emitter component (spec §4.G):
// append-only event and log streams with side effects on a job's lifecycle
// timestamps, plus the DumpEvents/DumpLogs pagination the maintainer's read
// side exposes (SPEC_FULL.md §5 supplement).
package eventlog

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// defaultPageSize bounds DumpEvents/DumpLogs when the caller passes limit <= 0.
const defaultPageSize = 100

// Emitter writes Event/Log rows and mutates a job's lifecycle timestamps in
// response to specific event types, matching spec §3's Event contract.
type Emitter struct {
	jobs   store.JobStore
	events store.EventStore
	logs   store.LogStore
}

// New returns an Emitter writing through the given store collaborators.
func New(jobs store.JobStore, events store.EventStore, logs store.LogStore) *Emitter {
	return &Emitter{jobs: jobs, events: events, logs: logs}
}

// EmitEvent appends an Event row and, for the lifecycle-marking event
// types, updates the job's timestamp fields. Persistence is best-effort:
// a store failure is logged by the caller (via the returned error) but
// never blocks the maintainer's state machine from progressing.
func (e *Emitter) EmitEvent(ctx context.Context, jobID string, eventType store.EventType, message string) error {
	if err := e.events.AppendEvent(ctx, &store.Event{JobID: jobID, Type: eventType, Message: message}); err != nil {
		return errors.Wrapf(err, "appending event %s for job %s", eventType, jobID)
	}

	switch eventType {
	case store.EventJobQueued:
		return e.touchJob(ctx, jobID, func(j *store.Job) { now := time.Now(); j.QueuedAt = &now })
	case store.EventJobInit:
		return e.touchJob(ctx, jobID, func(j *store.Job) { now := time.Now(); j.InitializedAt = &now })
	case store.EventJobEnded:
		return e.touchJob(ctx, jobID, func(j *store.Job) { now := time.Now(); j.FinishedAt = &now })
	case store.EventJobFailed:
		return e.touchJob(ctx, jobID, func(j *store.Job) {
			now := time.Now()
			j.FinishedAt = &now
			j.IsFailed = true
		})
	default:
		return nil
	}
}

func (e *Emitter) touchJob(ctx context.Context, jobID string, mutate func(*store.Job)) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return errors.Wrapf(err, "loading job %s to apply timestamp", jobID)
	}
	mutate(job)
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return errors.Wrapf(err, "persisting timestamp for job %s", jobID)
	}
	return nil
}

// EmitLog appends a free-text log line, truncated to the store's 500-char
// contract.
func (e *Emitter) EmitLog(ctx context.Context, jobID, message string) error {
	if err := e.logs.AppendLog(ctx, &store.Log{JobID: jobID, Message: message}); err != nil {
		return errors.Wrapf(err, "appending log for job %s", jobID)
	}
	return nil
}

// DumpEvents returns a page of jobID's event history, oldest first.
func (e *Emitter) DumpEvents(ctx context.Context, jobID string, offset, limit int) ([]*store.Event, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return e.events.ListEvents(ctx, jobID, offset, limit)
}

// DumpLogs returns a page of jobID's log history, oldest first.
func (e *Emitter) DumpLogs(ctx context.Context, jobID string, offset, limit int) ([]*store.Log, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return e.logs.ListLogs(ctx, jobID, offset, limit)
}
