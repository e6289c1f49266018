// `jobcost` -- Estimate the cost of Slurm jobs
//
// Usage: jobcost [options] [job-id ...]
//
// The rate configuration (-config) describes node groups and the rates that apply to them; see
// config/config.go for the format.  Job records are read from sacct by default, or from a file of
// recorded sacct output, Sonar's Slurm job data, the slurm-monitor database, or Kafka.  Without job
// ids, all jobs in the time window -from..-to are costed.
//
// Defaults for most options can be set in ~/.jobcost, see common/inifile.go.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	. "jobcost/common"
	"jobcost/report"
	"jobcost/source"
	"jobcost/status"
)

// v0.1.0 - initial
// v0.2.0 - sonar, database and kafka sources; table and yaml formats

const JobcostVersion = "0.2.0"

const (
	defaultFormat     = "short"
	defaultSource     = "sacct"
	defaultExpander   = "builtin"
	defaultPercentile = 10
)

type options struct {
	ConfigFile  string `flag:"config" validate:"required"`
	Format      string `flag:"fmt" validate:"oneof=quiet short verbose table json yaml"`
	TableSpec   string `flag:"table"`
	Source      string `flag:"source" validate:"oneof=sacct file sonar db kafka"`
	Input       string `flag:"input" validate:"required_if=Source file,required_if=Source sonar"`
	Sacct       string `flag:"sacct"`
	DatabaseURI string `flag:"database-uri" validate:"required_if=Source db"`
	KafkaBroker string `flag:"kafka-broker" validate:"required_if=Source kafka"`
	Cluster     string `flag:"cluster" validate:"required_if=Source db,required_if=Source kafka"`
	Expander    string `flag:"expand" validate:"oneof=builtin scontrol"`
	Scontrol    string `flag:"scontrol"`
	From        string `flag:"from"`
	To          string `flag:"to"`
	Percentile  int    `flag:"percentile" validate:"min=1,max=100"`
	Precision   int    `flag:"precision" validate:"min=0,max=20"`
	BatchSize   int    `flag:"batch-size" validate:"min=1"`
	Parallelism int    `flag:"parallel" validate:"min=1"`
	Sum         bool   `flag:"sum"`
	Verbose     bool   `flag:"v"`
	Debug       bool   `flag:"debug"`
	JobIDs      []string
}

func main() {
	opts := commandLine()
	if opts.Debug {
		Log.LowerLevelTo(status.LogLevelDebug)
	} else if opts.Verbose {
		Log.LowerLevelTo(status.LogLevelInfo)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commandLine() *options {
	LoadDefaults()

	opts := new(options)
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	out := fs.Output()
	addFlags(fs, opts)
	version := fs.Bool("version", false, "Print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [options] [job-id ...]\n\n", os.Args[0])
		fmt.Fprintln(out, "  Estimate the cost of Slurm jobs from a rate configuration and job accounting data.")
		fmt.Fprintln(out, "  Defaults for most options can be set in ~/.jobcost.\n\nOptions:")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if *version {
		fmt.Printf("jobcost version(%s)\n", JobcostVersion)
		os.Exit(0)
	}
	opts.JobIDs = splitJobIDs(fs.Args())

	if err := applyDefaults(opts); err != nil {
		fmt.Fprintln(out, err)
		os.Exit(2)
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintln(out, err)
		os.Exit(2)
	}
	return opts
}

func addFlags(fs *flag.FlagSet, opts *options) {
	fs.StringVar(&opts.ConfigFile, "config", "", "Read the rate configuration from `filename` (required)")
	fs.StringVar(&opts.Format, "fmt", "",
		"Output `format`, one of "+strings.Join(modeNames(), ", ")+" (default "+defaultFormat+")")
	fs.StringVar(&opts.TableSpec, "table", "",
		"Fields and options for -fmt table, eg JobID,Total,csv (`spec`, or \"help\")")
	fs.StringVar(&opts.Source, "source", "", "Job data `source`, one of sacct, file, sonar, db, kafka (default sacct)")
	fs.StringVar(&opts.Input, "input", "", "Input `filename` for -source file and -source sonar, - for stdin")
	fs.StringVar(&opts.Sacct, "sacct", "", "Path of sacct `program` (default sacct)")
	fs.StringVar(&opts.DatabaseURI, "database-uri", "", "Database `uri` for -source db")
	fs.StringVar(&opts.KafkaBroker, "kafka-broker", "", "Kafka broker `host:port` for -source kafka")
	fs.StringVar(&opts.Cluster, "cluster", "", "Cluster `name` for -source db and -source kafka")
	fs.StringVar(&opts.Expander, "expand", "", "Host list expander, builtin or scontrol (default builtin)")
	fs.StringVar(&opts.Scontrol, "scontrol", "", "Path of scontrol `program` for -expand scontrol")
	fs.StringVar(&opts.From, "from", "", "Select jobs from `time` (sacct syntax, or YYYY-MM-DD)")
	fs.StringVar(&opts.To, "to", "", "Select jobs up to `time` (sacct syntax, or YYYY-MM-DD)")
	fs.IntVar(&opts.Percentile, "percentile", 0,
		"Percentile `step` for statistics (default "+strconv.Itoa(defaultPercentile)+")")
	fs.IntVar(&opts.Precision, "precision", -1,
		"Fractional `digits` shown (default "+strconv.Itoa(report.DefaultPrecision)+")")
	fs.IntVar(&opts.BatchSize, "batch-size", source.DefaultBatchSize, "Job ids per sacct invocation")
	fs.IntVar(&opts.Parallelism, "parallel", source.DefaultParallelism, "Concurrent sacct invocations")
	fs.BoolVar(&opts.Sum, "sum", false, "Report the jobs as one job")
	fs.BoolVar(&opts.Verbose, "v", false, "Print progress information")
	fs.BoolVar(&opts.Debug, "debug", false, "Print debug information")
}

func modeNames() []string {
	names := make([]string, len(report.Modes))
	for i, m := range report.Modes {
		names[i] = string(m)
	}
	return names
}

// Job ids may be given as separate arguments or comma-separated.
func splitJobIDs(args []string) []string {
	ids := make([]string, 0, len(args))
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Values from ~/.jobcost fill in what the command line left unset, then builtin defaults fill in
// the rest.
func applyDefaults(opts *options) error {
	ApplyDefault(&opts.ConfigFile, DefaultConfig)
	ApplyDefault(&opts.Format, DefaultFormat)
	ApplyDefault(&opts.Source, DefaultSource)
	ApplyDefault(&opts.Sacct, DefaultSacctProgram)
	ApplyDefault(&opts.DatabaseURI, DefaultDatabaseURI)
	ApplyDefault(&opts.KafkaBroker, DefaultKafkaBroker)
	ApplyDefault(&opts.Cluster, DefaultCluster)
	_, e1 := ApplyIntDefault(&opts.Percentile, DefaultPercentile)
	var e2 error
	if opts.Precision < 0 {
		opts.Precision = 0
		var applied bool
		applied, e2 = ApplyIntDefault(&opts.Precision, DefaultPrecision)
		if !applied {
			opts.Precision = report.DefaultPrecision
		}
	}
	if opts.Format == "" {
		opts.Format = defaultFormat
	}
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.Expander == "" {
		opts.Expander = defaultExpander
	}
	if opts.Percentile == 0 {
		opts.Percentile = defaultPercentile
	}
	return errors.Join(e1, e2)
}

func (opts *options) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("flag")
	})
	var verrs validator.ValidationErrors
	if err := v.Struct(opts); err != nil && !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs)+1)
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			errs = append(errs, fmt.Errorf("Option -%s is required", fe.Field()))
		case "oneof":
			errs = append(errs, fmt.Errorf("Option -%s: '%v' is not one of %s", fe.Field(), fe.Value(), fe.Param()))
		default:
			errs = append(errs, fmt.Errorf("Option -%s: Bad value %v", fe.Field(), fe.Value()))
		}
	}
	var e1 error
	if opts.Format != string(report.Table) && opts.TableSpec != "" {
		e1 = errors.New("Option -table requires -fmt table")
	}
	return errors.Join(append(errs, e1)...)
}
