package store

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

// schema creates every table PostgresStore's queries assume. It is
// idempotent (IF NOT EXISTS throughout) so Migrate is safe to rerun.
const schema = `
create table if not exists jobs (
	id              text primary key,
	user_id         text not null,
	hpc             text not null,
	maintainer      text not null,
	credential_id   text,
	param           jsonb not null default '{}',
	env             jsonb not null default '{}',
	slurm           jsonb not null default '{}',
	created_at      timestamptz not null default now(),
	queued_at       timestamptz,
	initialized_at  timestamptz,
	finished_at     timestamptz,
	is_failed       boolean not null default false,
	nodes           integer not null default 0,
	cpus            integer not null default 0,
	cpu_time        double precision not null default 0,
	memory          bigint not null default 0,
	memory_usage    bigint not null default 0,
	walltime        double precision not null default 0
);

create table if not exists folders (
	id          text primary key,
	hpc         text not null,
	user_id     text not null,
	hpc_path    text not null,
	globus_path text,
	created_at  timestamptz not null default now(),
	deleted_at  timestamptz
);

create table if not exists staging_cache (
	hpc         text not null,
	fingerprint text not null,
	hpc_path    text not null,
	created_at  timestamptz not null default now(),
	updated_at  timestamptz not null default now(),
	primary key (hpc, fingerprint)
);

create table if not exists credentials (
	id        text primary key,
	user_name text not null,
	password  text not null
);

create table if not exists events (
	job_id     text not null,
	type       text not null,
	message    text not null,
	created_at timestamptz not null default now()
);
create index if not exists events_job_id_idx on events (job_id, created_at);

create table if not exists logs (
	job_id     text not null,
	message    text not null,
	created_at timestamptz not null default now()
);
create index if not exists logs_job_id_idx on logs (job_id, created_at);

create table if not exists git_repos (
	git_id         text primary key,
	url            text not null,
	default_branch text not null,
	supported_hpc  text[] not null default '{}'
);

create table if not exists globus_transfer_refresh_tokens (
	user_id       text primary key,
	refresh_token text not null
);

create table if not exists allowlist (
	hpc     text not null,
	user_id text not null,
	primary key (hpc, user_id)
);

create table if not exists denylist (
	hpc     text not null,
	user_id text not null,
	primary key (hpc, user_id)
);

create table if not exists approvals (
	job_id      text primary key,
	approved_by text not null,
	approved_at timestamptz not null default now()
);
`

// Migrate applies the supervisor's schema to dsn, creating every table the
// PostgresStore queries assume. Not part of the Store interface: it is a
// one-shot operator action (the `supervisord migrate` subcommand), not
// something the running supervisor calls.
func Migrate(ctx context.Context, dsn string) error {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connecting to postgres")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "applying schema")
	}
	return nil
}
