// Records from the slurm-monitor TimescaleDB, where Sonar's job snapshots are ingested.  Every
// snapshot of a job or step is a row; we want the most recent one of each.  The database does not
// store energy, so every job has a measurement gap.

package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"

	. "jobcost/common"
	"jobcost/jobs"
)

// The subset of *pgx.Conn that we use.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Database struct {
	URI     string
	Cluster string
	Query   Query

	// For testing
	connect func(ctx context.Context, uri string) (querier, func(), error)
}

func NewDatabase(uri, cluster string, query Query) *Database {
	return &Database{URI: uri, Cluster: cluster, Query: query, connect: connectDatabase}
}

func connectDatabase(ctx context.Context, uri string) (querier, func(), error) {
	conn, err := pgx.Connect(ctx, uri)
	if err != nil {
		return nil, nil, fmt.Errorf("Unable to connect to database: %w", err)
	}
	return conn, func() { conn.Close(context.Background()) }, nil
}

func (d *Database) Name() string {
	return "database"
}

// Alpha order and keep the boxes in Records in sync.
const jobFields = "t1.job_id, t1.job_step, \"ElapsedRaw\", nodes"

const jobTable = "sample_slurm_job as t1 join sample_slurm_job_acc as t2 on " +
	"t1.cluster = t2.cluster and " +
	"t1.job_id = t2.job_id and " +
	"t1.job_step = t2.job_step and " +
	"t1.time = t2.time"

func (d *Database) query() (string, []any, error) {
	conds := []string{"t1.cluster = $1"}
	args := []any{d.Cluster}
	if ids := d.Query.UniqueJobIDs(); len(ids) > 0 {
		nums := make([]int64, 0, len(ids))
		for _, id := range ids {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return "", nil, fmt.Errorf("Job id %s: The database only has numeric job ids", id)
			}
			nums = append(nums, n)
		}
		args = append(args, nums)
		conds = append(conds, fmt.Sprintf("t1.job_id = ANY($%d)", len(args)))
	}
	if d.Query.From != "" {
		t, err := parseTime(d.Query.From)
		if err != nil {
			return "", nil, err
		}
		args = append(args, t)
		conds = append(conds, fmt.Sprintf("t1.time >= $%d", len(args)))
	}
	if d.Query.To != "" {
		t, err := parseTime(d.Query.To)
		if err != nil {
			return "", nil, err
		}
		args = append(args, t)
		conds = append(conds, fmt.Sprintf("t1.time < $%d", len(args)))
	}
	q := "SELECT DISTINCT ON (t1.job_id, t1.job_step) " + jobFields +
		" FROM " + jobTable +
		" WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY t1.job_id, t1.job_step, t1.time DESC"
	return q, args, nil
}

func (d *Database) Records(ctx context.Context) (jobs.RecordReader, error) {
	q, args, err := d.query()
	if err != nil {
		return nil, err
	}
	conn, closer, err := d.connect(ctx, d.URI)
	if err != nil {
		return nil, err
	}
	defer closer()

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var (
		jobID, elapsedRaw pgtype.Int8
		jobStep           string
		nodes             []string
	)
	boxes := []any{&jobID, &jobStep, &elapsedRaw, &nodes}
	snaps := newSnapshots()
	_, err = pgx.ForEachRow(rows, boxes, func() error {
		if jobID.Status != pgtype.Present || jobID.Int < 0 {
			return NewSourceContractError(d.Name(), "Null or negative job id")
		}
		var secs uint64
		if elapsedRaw.Status == pgtype.Present && elapsedRaw.Int >= 0 {
			secs = uint64(elapsedRaw.Int)
		} else if jobStep == "" {
			return NewSourceContractError(d.Name(), "Job %d: No elapsed time", jobID.Int)
		}
		snaps.add(snapshotRecord(uint64(jobID.Int), jobStep, secs, nodes))
		return nil
	})
	if err != nil {
		return nil, err
	}
	Log.Debugf("%s: %d records", d.Name(), len(snaps.order))
	return jobs.NewSliceReader(snaps.arrange(d.Name())), nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("Bad time '%s': Expected YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
