// Records from Sonar's Slurm job data: a sequence of JSON envelopes in the `job` format, each
// holding a snapshot of a number of jobs and steps, or an error report.  The same envelopes are
// stored in files by Sonar's data sink and are published on the cluster's Kafka topic.  The latest
// snapshot of each job and step is used.  Sonar does not collect energy, so every job has a
// measurement gap.

package source

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/NordicHPC/sonar/util/formats/newfmt"

	. "jobcost/common"
	"jobcost/jobs"
)

type Sonar struct {
	Path  string
	Query Query
}

func (s *Sonar) Name() string {
	return "sonar:" + s.Path
}

func (s *Sonar) Records(ctx context.Context) (jobs.RecordReader, error) {
	var input io.Reader = os.Stdin
	if s.Path != "-" {
		file, err := os.Open(s.Path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		input = file
	}
	d := newJobsDecoder(s.Name(), &s.Query)
	if err := d.decode(input); err != nil {
		return nil, err
	}
	return jobs.NewSliceReader(d.records()), nil
}

// jobsDecoder accumulates the snapshots of any number of inputs.
type jobsDecoder struct {
	source     string
	query      *Query
	snaps      *snapshots
	softErrors int
}

func newJobsDecoder(source string, query *Query) *jobsDecoder {
	return &jobsDecoder{source: source, query: query, snaps: newSnapshots()}
}

func (d *jobsDecoder) decode(input io.Reader) error {
	err := newfmt.ConsumeJSONJobs(input, false, func(r *newfmt.JobsEnvelope) {
		// Error envelopes have no data.
		if r.Errors != nil || r.Data == nil {
			d.softErrors++
			return
		}
		for i := range r.Data.Attributes.SlurmJobs {
			job := &r.Data.Attributes.SlurmJobs[i]
			id := uint64(job.JobID)
			if !d.query.wants(strconv.FormatUint(id, 10)) {
				continue
			}
			var elapsed uint64
			if job.Sacct != nil {
				elapsed = job.Sacct.ElapsedRaw
			}
			ranges := make([]string, len(job.NodeList))
			for j, h := range job.NodeList {
				ranges[j] = string(h)
			}
			d.snaps.add(snapshotRecord(id, job.JobStep, elapsed, ranges))
		}
	})
	if err != nil {
		return NewSourceContractError(d.source, "Bad job data: %v", err)
	}
	return nil
}

// records arranges what has been decoded so far.
func (d *jobsDecoder) records() []*jobs.Record {
	if d.softErrors > 0 {
		Log.Infof("%s: %d envelope(s) with errors", d.source, d.softErrors)
	}
	return d.snaps.arrange(d.source)
}
