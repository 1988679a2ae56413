// Package resultcache backs the result-folder content cache named in spec
// §6's persisted-state list: `job_result_folder_content<jobId>`. A
// maintainer publishes the result folder's immediate children here once a
// job reaches COLLECTING, so a status query can answer "what's in the
// result folder" without a fresh remote listing.
//
// Keying and the thin Redis-client wrapper follow
// internal/queue.Queue's prefix-key convention, itself grounded on
// armadaproject-armada/internal/armada/repository/job.go.
package resultcache

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const keyPrefix = "cybergis:job_result_folder_content:"

func key(jobID string) string { return keyPrefix + jobID }

// Entry is one file or subdirectory listed in a job's result folder.
// Default is true for the manifest-declared default file, which Put sorts
// first.
type Entry struct {
	Name    string `json:"name"`
	IsDir   bool   `json:"isDir"`
	Default bool   `json:"default,omitempty"`
}

// Cache stores jobID -> []Entry in Redis as a JSON blob.
type Cache struct {
	redis *redis.Client
}

// New returns a Cache backed by client.
func New(client *redis.Client) *Cache {
	return &Cache{redis: client}
}

// Put publishes entries for jobID, moving the manifest-declared default
// file (if any) to the front.
func (c *Cache) Put(ctx context.Context, jobID string, entries []Entry) error {
	ordered := make([]Entry, 0, len(entries))
	var def *Entry
	for i := range entries {
		if entries[i].Default && def == nil {
			d := entries[i]
			def = &d
			continue
		}
		ordered = append(ordered, entries[i])
	}
	if def != nil {
		ordered = append([]Entry{*def}, ordered...)
	}

	blob, err := json.Marshal(ordered)
	if err != nil {
		return errors.Wrapf(err, "marshaling result folder content for job %s", jobID)
	}
	if err := c.redis.Set(key(jobID), blob, 0).Err(); err != nil {
		return errors.Wrapf(err, "publishing result folder content for job %s", jobID)
	}
	return nil
}

// Get returns the previously published listing for jobID, or (nil, false)
// if nothing has been published yet.
func (c *Cache) Get(ctx context.Context, jobID string) ([]Entry, bool, error) {
	blob, err := c.redis.Get(key(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading result folder content for job %s", jobID)
	}
	var entries []Entry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, false, errors.Wrapf(err, "unmarshaling result folder content for job %s", jobID)
	}
	return entries, true, nil
}
