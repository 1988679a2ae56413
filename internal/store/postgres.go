package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore is the pgx/v4-backed Store implementation used in production.
// Connection pooling, transactions, and error wrapping follow the
// pgxpool idiom the rest of the pack uses for its relational collaborators.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore dials dsn and returns a ready Store. Callers own the
// returned pool's lifetime via Close.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *Job) error {
	param, err := json.Marshal(j.Param)
	if err != nil {
		return errors.Wrap(err, "marshalling job param")
	}
	env, err := json.Marshal(j.Env)
	if err != nil {
		return errors.Wrap(err, "marshalling job env")
	}
	slurm, err := json.Marshal(j.Slurm)
	if err != nil {
		return errors.Wrap(err, "marshalling job slurm config")
	}
	_, err = s.db.Exec(ctx,
		`insert into jobs (id, user_id, hpc, maintainer, credential_id, param, env, slurm, created_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		j.ID, j.UserID, j.HPC, j.Maintainer, j.CredentialID, param, env, slurm)
	if err != nil {
		return errors.Wrap(err, "inserting job")
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	j := &Job{ID: id}
	var param, env, slurm []byte
	err := s.db.QueryRow(ctx,
		`select user_id, hpc, maintainer, credential_id, param, env, slurm,
		        created_at, queued_at, initialized_at, finished_at, is_failed,
		        nodes, cpus, cpu_time, memory, memory_usage, walltime
		 from jobs where id = $1`, id,
	).Scan(&j.UserID, &j.HPC, &j.Maintainer, &j.CredentialID, &param, &env, &slurm,
		&j.CreatedAt, &j.QueuedAt, &j.InitializedAt, &j.FinishedAt, &j.IsFailed,
		&j.Nodes, &j.CPUs, &j.CPUTime, &j.Memory, &j.MemoryUsage, &j.Walltime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying job")
	}
	_ = json.Unmarshal(param, &j.Param)
	_ = json.Unmarshal(env, &j.Env)
	_ = json.Unmarshal(slurm, &j.Slurm)
	return j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *Job) error {
	_, err := s.db.Exec(ctx,
		`update jobs set queued_at = $2, initialized_at = $3, finished_at = $4,
		        is_failed = $5, nodes = $6, cpus = $7, cpu_time = $8,
		        memory = $9, memory_usage = $10, walltime = $11
		 where id = $1`,
		j.ID, j.QueuedAt, j.InitializedAt, j.FinishedAt, j.IsFailed,
		j.Nodes, j.CPUs, j.CPUTime, j.Memory, j.MemoryUsage, j.Walltime)
	if err != nil {
		return errors.Wrap(err, "updating job")
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `delete from jobs where id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting job")
	}
	return nil
}

func (s *PostgresStore) ListJobsByUser(ctx context.Context, userID string) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `select id from jobs where user_id = $1 order by created_at desc`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning job id")
		}
		ids = append(ids, id)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *PostgresStore) CreateFolder(ctx context.Context, f *Folder) error {
	_, err := s.db.Exec(ctx,
		`insert into folders (id, hpc, user_id, hpc_path, globus_path, created_at)
		 values ($1, $2, $3, $4, $5, now())`,
		f.ID, f.HPC, f.UserID, f.HPCPath, f.GlobusPath)
	return errors.Wrap(err, "inserting folder")
}

func (s *PostgresStore) GetFolder(ctx context.Context, id string) (*Folder, error) {
	f := &Folder{ID: id}
	err := s.db.QueryRow(ctx,
		`select hpc, user_id, hpc_path, globus_path, created_at, deleted_at from folders where id = $1`, id,
	).Scan(&f.HPC, &f.UserID, &f.HPCPath, &f.GlobusPath, &f.CreatedAt, &f.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, errors.Wrap(err, "querying folder")
}

func (s *PostgresStore) DeleteFolder(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `update folders set deleted_at = now() where id = $1`, id)
	return errors.Wrap(err, "soft-deleting folder")
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, hpc, fingerprint string) (*CacheEntry, error) {
	e := &CacheEntry{HPC: hpc}
	err := s.db.QueryRow(ctx,
		`select hpc_path, created_at, updated_at from staging_cache where hpc = $1 and fingerprint = $2`,
		hpc, fingerprint,
	).Scan(&e.HPCPath, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, errors.Wrap(err, "querying cache entry")
}

func (s *PostgresStore) PutCacheEntry(ctx context.Context, hpc, fingerprint string, e *CacheEntry) error {
	_, err := s.db.Exec(ctx,
		`insert into staging_cache (hpc, fingerprint, hpc_path, created_at, updated_at)
		 values ($1, $2, $3, now(), now())
		 on conflict (hpc, fingerprint) do update set hpc_path = $3, updated_at = now()`,
		hpc, fingerprint, e.HPCPath)
	return errors.Wrap(err, "upserting cache entry")
}

func (s *PostgresStore) DeleteCacheEntry(ctx context.Context, hpc, fingerprint string) error {
	_, err := s.db.Exec(ctx, `delete from staging_cache where hpc = $1 and fingerprint = $2`, hpc, fingerprint)
	return errors.Wrap(err, "deleting cache entry")
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*Credential, error) {
	c := &Credential{ID: id}
	err := s.db.QueryRow(ctx, `select user_name, password from credentials where id = $1`, id).
		Scan(&c.User, &c.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, errors.Wrap(err, "querying credential")
}

func (s *PostgresStore) PutCredential(ctx context.Context, c *Credential) error {
	_, err := s.db.Exec(ctx,
		`insert into credentials (id, user_name, password) values ($1, $2, $3)
		 on conflict (id) do update set user_name = $2, password = $3`,
		c.ID, c.User, c.Password)
	return errors.Wrap(err, "upserting credential")
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `delete from credentials where id = $1`, id)
	return errors.Wrap(err, "deleting credential")
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx,
		`insert into events (job_id, type, message, created_at) values ($1, $2, $3, now())`,
		e.JobID, e.Type, e.Message)
	return errors.Wrap(err, "appending event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, jobID string, offset, limit int) ([]*Event, error) {
	rows, err := s.db.Query(ctx,
		`select type, message, created_at from events where job_id = $1 order by created_at asc offset $2 limit $3`,
		jobID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{JobID: jobID}
		if err := rows.Scan(&e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning event")
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, l *Log) error {
	_, err := s.db.Exec(ctx,
		`insert into logs (job_id, message, created_at) values ($1, $2, now())`,
		l.JobID, TruncateMessage(l.Message))
	return errors.Wrap(err, "appending log")
}

func (s *PostgresStore) ListLogs(ctx context.Context, jobID string, offset, limit int) ([]*Log, error) {
	rows, err := s.db.Query(ctx,
		`select message, created_at from logs where job_id = $1 order by created_at asc offset $2 limit $3`,
		jobID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing logs")
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		l := &Log{JobID: jobID}
		if err := rows.Scan(&l.Message, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning log")
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *PostgresStore) GetGitRepo(ctx context.Context, gitID string) (*GitRepo, error) {
	g := &GitRepo{GitID: gitID}
	var supported []string
	err := s.db.QueryRow(ctx,
		`select url, default_branch, supported_hpc from git_repos where git_id = $1`, gitID,
	).Scan(&g.URL, &g.DefaultBranch, &supported)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	g.SupportedHPC = supported
	return g, errors.Wrap(err, "querying git repo")
}

func (s *PostgresStore) IsAllowed(ctx context.Context, hpc, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`select exists(select 1 from allowlist where hpc = $1 and user_id = $2)`, hpc, userID,
	).Scan(&ok)
	return ok, errors.Wrap(err, "querying allowlist")
}

func (s *PostgresStore) IsDenied(ctx context.Context, hpc, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`select exists(select 1 from denylist where hpc = $1 and user_id = $2)`, hpc, userID,
	).Scan(&ok)
	return ok, errors.Wrap(err, "querying denylist")
}
