// Records from sacct.
//
// sacct is run with parsable output and no header, and with exactly the fields we need.  Explicit
// job ids are looked up in batches, since sacct and the kernel both limit the length of the
// argument list; the batches run in parallel and their outputs are concatenated in batch order so
// that steps still follow their job.

package source

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"jobcost/jobs"
	"jobcost/process"
)

const (
	DefaultSacct       = "sacct"
	DefaultBatchSize   = 500
	DefaultParallelism = 4
)

// MT: Constant after initialization; immutable
var sacctFields = []string{"JobID", "Elapsed", "ConsumedEnergyRaw", "NodeList"}

type Sacct struct {
	Program     string
	Query       Query
	BatchSize   int
	Parallelism int
	Run         process.Runner
}

func NewSacct(program string, query Query) *Sacct {
	if program == "" {
		program = DefaultSacct
	}
	return &Sacct{
		Program:     program,
		Query:       query,
		BatchSize:   DefaultBatchSize,
		Parallelism: DefaultParallelism,
		Run:         process.RunSubprocess,
	}
}

func (s *Sacct) Name() string {
	return "sacct"
}

func (s *Sacct) arguments() []string {
	return []string{"-P", "--noheader", "-o", strings.Join(sacctFields, ",")}
}

func (s *Sacct) Records(ctx context.Context) (jobs.RecordReader, error) {
	ids := s.Query.UniqueJobIDs()
	if len(ids) == 0 {
		args := append(s.arguments(), "-a")
		if s.Query.From != "" {
			args = append(args, "-S", s.Query.From)
		}
		if s.Query.To != "" {
			args = append(args, "-E", s.Query.To)
		}
		records, err := s.run(ctx, args)
		if err != nil {
			return nil, err
		}
		return jobs.NewSliceReader(records), nil
	}

	batches := batch(ids, max(s.BatchSize, 1))
	results := make([][]*jobs.Record, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallelism, 1))
	for i, b := range batches {
		g.Go(func() error {
			records, err := s.run(gctx, append(s.arguments(), "-j", strings.Join(b, ",")))
			if err != nil {
				return fmt.Errorf("Batch %d of %d: %w", i+1, len(batches), err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, r := range results {
		n += len(r)
	}
	all := make([]*jobs.Record, 0, n)
	for _, r := range results {
		all = append(all, r...)
	}
	return jobs.NewSliceReader(all), nil
}

func (s *Sacct) run(ctx context.Context, args []string) ([]*jobs.Record, error) {
	stdout, _, err := s.Run(ctx, s.Program, args)
	if err != nil {
		return nil, err
	}
	return ReadAll(NewPipeReader(s.Name(), strings.NewReader(stdout)))
}

func batch(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		batches = append(batches, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}
