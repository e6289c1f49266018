package jobs

import (
	"errors"
	"io"
	"strings"

	. "jobcost/common"
)

// A job with its steps folded in.
type Job struct {
	JobID          string
	RuntimeSeconds uint64
	Energy         Energy
	NodeList       string
	Steps          int
}

// False for jobs that were never assigned nodes (cancelled while pending, say).  Such jobs are not
// costed at all.
func (j *Job) HasNodes() bool {
	nl := strings.TrimSpace(j.NodeList)
	return nl != "" && nl != NoneAssigned
}

// A source of records.  Read returns io.EOF at the end of the stream.  The records for a job's
// steps must immediately follow the record for the job.
type RecordReader interface {
	Read() (*Record, error)
}

type SliceReader struct {
	records []*Record
	next    int
}

func NewSliceReader(records []*Record) *SliceReader {
	return &SliceReader{records: records}
}

func (sr *SliceReader) Read() (*Record, error) {
	if sr.next == len(sr.records) {
		return nil, io.EOF
	}
	r := sr.records[sr.next]
	sr.next++
	return r, nil
}

// peeker carries one record of lookahead.  Errors (including io.EOF) are sticky.
type peeker struct {
	in      RecordReader
	pending *Record
	err     error
}

func (p *peeker) Peek() (*Record, error) {
	if p.pending == nil && p.err == nil {
		p.pending, p.err = p.in.Read()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.pending, nil
}

func (p *peeker) Next() (*Record, error) {
	r, err := p.Peek()
	if err != nil {
		return nil, err
	}
	p.pending = nil
	return r, nil
}

// Aggregator turns a stream of job and step records into a stream of jobs.  A job is only returned
// once the record following its last step has been seen (or the stream has ended), so its energy
// includes all the steps.
type Aggregator struct {
	in      peeker
	source  string
	dropped int
}

// `source` names the origin of the records in error messages.
func NewAggregator(source string, in RecordReader) *Aggregator {
	return &Aggregator{
		in:     peeker{in: in},
		source: source,
	}
}

// The number of jobs skipped so far because they had no nodes.
func (a *Aggregator) Dropped() int {
	return a.dropped
}

// Next returns the next job, or io.EOF at the end.  A *SourceContractError is returned if the
// stream is malformed; other errors come from the underlying reader.
func (a *Aggregator) Next() (*Job, error) {
	for {
		r, err := a.in.Next()
		if err != nil {
			return nil, err
		}
		if r.IsStep() {
			return nil, NewSourceContractError(a.source, "Job step %s does not follow its job", r.JobID)
		}
		secs, err := ParseElapsed(r.Elapsed)
		if err != nil {
			return nil, NewSourceContractError(a.source, "Job %s: %v", r.JobID, err)
		}
		a.checkEnergy(r)
		job := &Job{
			JobID:          r.JobID,
			RuntimeSeconds: secs,
			Energy:         r.Energy,
			NodeList:       r.NodeList,
		}

	StepLoop:
		for {
			next, err := a.in.Peek()
			switch {
			case errors.Is(err, io.EOF):
				break StepLoop
			case err != nil:
				return nil, err
			case !next.IsStep():
				if next.JobID == job.JobID {
					return nil, NewSourceContractError(a.source, "Job %s appears twice", job.JobID)
				}
				break StepLoop
			case next.ParentID() != job.JobID:
				return nil, NewSourceContractError(
					a.source, "Job step %s follows job %s", next.JobID, job.JobID)
			}
			a.in.Next()
			a.checkEnergy(next)
			job.Energy = job.Energy.Add(next.Energy)
			job.Steps++
		}

		if !job.HasNodes() {
			a.dropped++
			Log.Debugf("Job %s dropped: no nodes assigned", job.JobID)
			continue
		}
		return job, nil
	}
}

// A reading at or above MaxValidEnergy is a wrapped counter.  It is left out of the job's energy
// like a missing reading, but unlike a missing reading it is reported.
func (a *Aggregator) checkEnergy(r *Record) {
	if !r.Energy.Valid && r.Energy.Joules != 0 {
		Log.Warningf("%s: Job %s: Energy reading %d J is out of range, ignored", a.source, r.JobID, r.Energy.Joules)
	}
}

// Collect drains the aggregator.
func (a *Aggregator) Collect() ([]*Job, error) {
	jobs := make([]*Job, 0)
	for {
		j, err := a.Next()
		if errors.Is(err, io.EOF) {
			return jobs, nil
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
}
