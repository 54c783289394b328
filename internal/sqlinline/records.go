package sqlinline

const QInsertRecord = `--sql 174d13c9-be20-4a20-bde6-2ed805cbe62f
insert into generation_records (id, kind, url, prompt, duration_seconds, aspect_ratio, model, status, error_message, created_at, completed_at)
values ($1::text, $2::text, $3::text, $4::text, $5::double precision, $6::text, $7::text, $8::text, nullif($9::text, ''), $10::timestamptz, $11::timestamptz)
on conflict (id) do nothing
returning id, kind, url, prompt, duration_seconds, aspect_ratio, model, status, coalesce(error_message, ''), created_at, completed_at;
`

const QSelectRecord = `--sql 44257beb-7fc2-4713-a44b-f51b92fad3a3
select id, kind, url, prompt, duration_seconds, aspect_ratio, model, status, coalesce(error_message, ''), created_at, completed_at
from generation_records
where id = $1::text;
`

const QSelectRecordIDs = `--sql 89de94a1-da7f-4bcd-bee3-1270e6ef0a9d
select id
from generation_records
where id = any($1::text[]);
`

const QDeleteRecord = `--sql 506e41ea-d7c0-4220-8e87-422cb9730a06
delete from generation_records
where id = $1::text;
`
