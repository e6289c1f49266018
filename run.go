package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	. "jobcost/common"
	"jobcost/config"
	"jobcost/cost"
	"jobcost/jobs"
	"jobcost/nodeset"
	"jobcost/report"
	"jobcost/source"
)

func run(ctx context.Context, opts *options, out io.Writer) error {
	mode, err := report.ParseMode(opts.Format)
	if err != nil {
		return err
	}

	expand := nodeset.Expand
	if opts.Expander == "scontrol" {
		expand = source.ScontrolExpander(ctx, opts.Scontrol, nil)
	}

	// Configuration errors are reported before any job data are read.
	cfg, err := config.ParseFile(opts.ConfigFile, expand)
	if err != nil {
		return err
	}
	Log.Infof("%s: %d node group(s), %d rate(s)", opts.ConfigFile, len(cfg.Groups), len(cfg.Rates))

	src := makeSource(opts)
	records, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("Reading jobs from %s: %w", src.Name(), err)
	}

	engine := cost.NewEngine(cfg, expand)
	agg := jobs.NewAggregator(src.Name(), records)
	rows := make([]*cost.Row, 0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := agg.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		row, err := engine.Compute(job)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	Log.Infof("%d job(s) costed, %d without nodes dropped", len(rows), agg.Dropped())

	if opts.Sum && len(rows) > 0 {
		rows = []*cost.Row{cost.Sum("sum", rows)}
	}

	rep := report.New(cfg, rows, opts.Percentile, agg.Dropped())
	return report.Render(out, rep, &report.Options{
		Mode:      mode,
		Precision: int32(opts.Precision),
		TableSpec: opts.TableSpec,
	})
}

func makeSource(opts *options) source.Source {
	query := source.Query{JobIDs: opts.JobIDs, From: opts.From, To: opts.To}
	switch opts.Source {
	case "file":
		return &source.File{Path: opts.Input, Query: query}
	case "sonar":
		return &source.Sonar{Path: opts.Input, Query: query}
	case "db":
		return source.NewDatabase(opts.DatabaseURI, opts.Cluster, query)
	case "kafka":
		return source.NewKafka(opts.KafkaBroker, opts.Cluster, query)
	default:
		s := source.NewSacct(opts.Sacct, query)
		s.BatchSize = opts.BatchSize
		s.Parallelism = opts.Parallelism
		return s
	}
}
