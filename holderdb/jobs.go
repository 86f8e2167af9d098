// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package holderdb

import (
	"context"
	"time"
)

// JobQuerier is the view of the store available inside JobLeaseTx.
type JobQuerier interface {
	JobGetForUpdate(ctx context.Context, key JobKey) (JobLockedRow, error)
	JobInsert(ctx context.Context, arg JobStatusParams) error
	JobSetStatus(ctx context.Context, arg JobStatusParams) (int64, error)
}

type JobStatusParams struct {
	OrgID  string
	JobID  string
	Status JobStatus
}

// JobLockedRow is a job row plus the database clock at read time, so
// staleness is judged against one clock regardless of which host asks.
type JobLockedRow struct {
	Job
	DBNow time.Time
}

const jobGetForUpdate = `
SELECT org_id, job_id, status, created_at, updated_at, now()
FROM jobs
WHERE org_id = $1 AND job_id = $2
FOR UPDATE
`

func (q *Queries) JobGetForUpdate(ctx context.Context, key JobKey) (JobLockedRow, error) {
	row := q.db.QueryRow(ctx, jobGetForUpdate, key.OrgID, key.JobID)
	var i JobLockedRow
	err := row.Scan(
		&i.OrgID,
		&i.JobID,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DBNow,
	)
	return i, err
}

const jobInsert = `
INSERT INTO jobs (org_id, job_id, status) VALUES ($1, $2, $3)
`

func (q *Queries) JobInsert(ctx context.Context, arg JobStatusParams) error {
	_, err := q.db.Exec(ctx, jobInsert, arg.OrgID, arg.JobID, arg.Status)
	return err
}

const jobSetStatus = `
UPDATE jobs SET status = $3, updated_at = now()
WHERE org_id = $1 AND job_id = $2
`

func (q *Queries) JobSetStatus(ctx context.Context, arg JobStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, jobSetStatus, arg.OrgID, arg.JobID, arg.Status)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const jobHeartbeat = `
UPDATE jobs SET status = 'running', updated_at = now()
WHERE org_id = $1 AND job_id = $2 AND status <> 'done'
`

// JobHeartbeat marks an active job running and refreshes updated_at.
func (q *Queries) JobHeartbeat(ctx context.Context, key JobKey) (int64, error) {
	tag, err := q.db.Exec(ctx, jobHeartbeat, key.OrgID, key.JobID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const jobDelete = `
DELETE FROM jobs WHERE org_id = $1 AND job_id = $2
`

func (q *Queries) JobDelete(ctx context.Context, key JobKey) (int64, error) {
	tag, err := q.db.Exec(ctx, jobDelete, key.OrgID, key.JobID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const jobList = `
SELECT org_id, job_id, status, created_at, updated_at
FROM jobs
WHERE $1::text = '' OR org_id = $1
ORDER BY org_id, job_id
`

// JobList returns jobs for orgID, or all jobs when orgID is empty.
func (q *Queries) JobList(ctx context.Context, orgID string) ([]Job, error) {
	rows, err := q.db.Query(ctx, jobList, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Job
	for rows.Next() {
		var i Job
		if err := rows.Scan(&i.OrgID, &i.JobID, &i.Status, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// JobLeaseTx runs fn in a transaction that holds an advisory lock on key.
// The lock covers the case where the job row does not exist yet, which a
// row lock cannot.
func (store *Store) JobLeaseTx(ctx context.Context, key JobKey, fn func(q JobQuerier) error) error {
	return store.execTx(ctx, func(s *Store) error {
		if err := s.advisoryXactLock(ctx, lockClassJob, key.OrgID+"/"+key.JobID); err != nil {
			return err
		}
		return fn(s)
	})
}
