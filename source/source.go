// Job-record sources.
//
// A source delivers the accounting records for a set of jobs as a jobs.RecordReader, each job's
// record immediately followed by the records for its steps.  sacct and recorded sacct output
// deliver records in that order already.  The snapshot sources (Sonar JSON, the database and
// Kafka) deliver records in no particular order and possibly several times over, and are arranged
// before they are handed on.

package source

import (
	"context"
	"slices"
	"strconv"
	"strings"

	. "jobcost/common"
	"jobcost/jobs"
)

type Source interface {
	// The name used in error messages.
	Name() string
	Records(ctx context.Context) (jobs.RecordReader, error)
}

// Query selects jobs.  If JobIDs is nonempty then From and To are ignored by sacct, and used to
// narrow the search by the others.  From and To are in any format sacct accepts; sources that
// interpret them themselves accept YYYY-MM-DD and RFC3339.
type Query struct {
	JobIDs []string
	From   string
	To     string
}

// The distinct ids in order of first appearance.
func (q *Query) UniqueJobIDs() []string {
	ids := make([]string, 0, len(q.JobIDs))
	seen := make(map[string]bool)
	for _, id := range q.JobIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Query) wants(parentID string) bool {
	return len(q.JobIDs) == 0 || slices.Contains(q.JobIDs, parentID)
}

// snapshotRecord constructs a record from the numeric representation used by Sonar and the
// database.  An empty step denotes the job itself.  Each element of ranges is a node name or a
// compressed hostlist range; together they form the job's node list.
func snapshotRecord(jobID uint64, step string, elapsedSecs uint64, ranges []string) *jobs.Record {
	id := strconv.FormatUint(jobID, 10)
	if step != "" {
		id += "." + step
	}
	patterns := make([]string, 0, len(ranges))
	for _, r := range ranges {
		// Sonar stores sacct's placeholder as if it were a node name.
		if r != jobs.NoneAssigned && r != "" {
			patterns = append(patterns, r)
		}
	}
	return &jobs.Record{
		JobID:    id,
		Elapsed:  jobs.FormatElapsed(elapsedSecs),
		NodeList: strings.Join(patterns, ","),
	}
}

// snapshots collects records keyed by id, the last one added for an id wins.
type snapshots struct {
	byID  map[string]*jobs.Record
	order []string
}

func newSnapshots() *snapshots {
	return &snapshots{byID: make(map[string]*jobs.Record)}
}

func (s *snapshots) add(r *jobs.Record) {
	if _, found := s.byID[r.JobID]; !found {
		s.order = append(s.order, r.JobID)
	}
	s.byID[r.JobID] = r
}

// arrange returns the records with every job followed by its steps.  Jobs are ordered by the first
// appearance of any of their records and steps are sorted by id.  Steps whose job is not present
// are dropped with a warning: a snapshot may have been taken after the job record expired.
func (s *snapshots) arrange(source string) []*jobs.Record {
	parents := make([]string, 0)
	steps := make(map[string][]*jobs.Record)
	for _, id := range s.order {
		r := s.byID[id]
		parent := r.ParentID()
		if _, found := steps[parent]; !found {
			parents = append(parents, parent)
			steps[parent] = []*jobs.Record{}
		}
		if r.IsStep() {
			steps[parent] = append(steps[parent], r)
		}
	}
	result := make([]*jobs.Record, 0, len(s.order))
	for _, parent := range parents {
		ss := steps[parent]
		job, found := s.byID[parent]
		if !found {
			Log.Warningf("%s: Dropping %d step(s) of job %s, the job record is missing", source, len(ss), parent)
			continue
		}
		slices.SortFunc(ss, func(a, b *jobs.Record) int {
			return strings.Compare(a.JobID, b.JobID)
		})
		result = append(result, job)
		result = append(result, ss...)
	}
	return result
}
