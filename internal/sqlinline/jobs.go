package sqlinline

const QInsertGenerationJob = `--sql f69f7d46-a936-4846-ac07-08efd2fcc85e
insert into generation_jobs (id, remote_id, kind, status, prompt, negative_prompt, aspect_ratio, model, target_duration_seconds, source_reference, started_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::double precision, $10::text, $11::timestamptz, now())
on conflict (id) do nothing;
`

const QUpdateGenerationJobStatus = `--sql a33d77ef-b731-488d-b247-50c6c6a80c97
update generation_jobs
set status = $2::text,
    output = nullif($3::text, ''),
    error_message = nullif($4::text, ''),
    completed_at = $5::timestamptz,
    updated_at = now()
where id = $1::text
  and status not in ('completed', 'failed', 'canceled');
`

const QListActiveGenerationJobs = `--sql 5b24ee1f-dc1d-4d49-aebf-ca5d90092e5c
select id, coalesce(remote_id, ''), kind, status, prompt, negative_prompt, aspect_ratio, model, target_duration_seconds, coalesce(source_reference, ''), started_at
from generation_jobs
where status in ('queued', 'generating')
order by started_at asc;
`
