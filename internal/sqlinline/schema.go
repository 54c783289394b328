package sqlinline

// Schema lists the DDL applied at startup, in order.
var Schema = []string{QCreateRecordsTable, QCreateGenerationJobsTable, QCreateIntegrationTokensTable}

const QCreateRecordsTable = `--sql 3faefb4f-0bd0-43d3-b84a-486fc9af7a4f
create table if not exists generation_records (
    id text primary key,
    kind text not null,
    url text not null,
    prompt text not null default '',
    duration_seconds double precision not null default 0,
    aspect_ratio text not null default '',
    model text not null default '',
    status text not null,
    error_message text,
    created_at timestamptz not null default now(),
    completed_at timestamptz
);
`

const QCreateGenerationJobsTable = `--sql 46fbeab8-1119-4eff-ad91-3f754d5c8fe2
create table if not exists generation_jobs (
    id text primary key,
    remote_id text,
    kind text not null,
    status text not null,
    prompt text not null default '',
    negative_prompt text not null default '',
    aspect_ratio text not null default '',
    model text not null default '',
    target_duration_seconds double precision not null default 0,
    source_reference text,
    output text,
    error_message text,
    started_at timestamptz not null,
    completed_at timestamptz,
    updated_at timestamptz not null default now()
);
`

const QCreateIntegrationTokensTable = `--sql 31466deb-13e1-4d91-8e90-ac41250fc606
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
