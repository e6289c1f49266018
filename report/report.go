// Presentation of cost rows and column statistics.
//
// Every mode renders the same Report, nothing is recomputed here.  Decimals are rounded to the
// display precision only at this point.
//
//   quiet    the total cost and the currency
//   short    one summary line
//   verbose  the rates, a table of jobs, the column statistics and the quantiles
//   table    only the table of jobs, with selectable fields and format (see ../table)
//   json     the structured Document
//   yaml     the structured Document

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"jobcost/config"
	"jobcost/cost"
	"jobcost/stats"
)

type Mode string

const (
	Quiet   Mode = "quiet"
	Short   Mode = "short"
	Verbose Mode = "verbose"
	Table   Mode = "table"
	JSON    Mode = "json"
	YAML    Mode = "yaml"
)

// MT: Constant after initialization; immutable
var Modes = []Mode{Quiet, Short, Verbose, Table, JSON, YAML}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !slices.Contains(Modes, m) {
		return "", fmt.Errorf("Unknown output format '%s'", s)
	}
	return m, nil
}

const DefaultPrecision = 2

type Options struct {
	Mode Mode

	// Fractional digits shown
	Precision int32

	// Fields and format options for the table of jobs in table mode, "" for the defaults
	TableSpec string
}

type Report struct {
	Config  *config.Configuration
	Rows    []*cost.Row
	Columns []*stats.Column

	// Jobs that were not costed because they never ran on any node
	Dropped int
}

func New(cfg *config.Configuration, rows []*cost.Row, percentileStep int, dropped int) *Report {
	return &Report{
		Config:  cfg,
		Rows:    rows,
		Columns: stats.Table(rows, cfg.RateNames(), percentileStep),
		Dropped: dropped,
	}
}

func (r *Report) Total() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.Rows {
		total = total.Add(row.Total)
	}
	return total
}

func (r *Report) NodeHours() decimal.Decimal {
	sum := decimal.Zero
	for _, row := range r.Rows {
		sum = sum.Add(row.RuntimeHours().Mul(decimal.NewFromInt(int64(row.NodeCount()))))
	}
	return sum
}

func (r *Report) Column(name string) *stats.Column {
	for _, c := range r.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func Render(out io.Writer, r *Report, opts *Options) error {
	switch opts.Mode {
	case Quiet:
		_, err := fmt.Fprintf(out, "%s %s\n", opts.dec(r.Total()), r.Config.Currency)
		return err
	case Short:
		return renderShort(out, r, opts)
	case Verbose:
		return renderVerbose(out, r, opts)
	case Table:
		return renderJobs(out, r, opts, opts.TableSpec)
	case JSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(NewDocument(r, opts))
	case YAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(r, opts)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("Unknown output format '%s'", opts.Mode)
	}
}

func renderShort(out io.Writer, r *Report, opts *Options) error {
	// Zero readings are inactive in the statistics but are still measurements.
	energy := "-"
	if slices.ContainsFunc(r.Rows, func(row *cost.Row) bool { return row.Energy.Valid }) {
		energy = opts.dec(r.Column(stats.EnergyColumn).Sum)
	}
	_, err := fmt.Fprintf(
		out, "%d job(s), %s node-hours, %s kWh, cost %s %s\n",
		len(r.Rows), opts.dec(r.NodeHours()), energy, opts.dec(r.Total()), r.Config.Currency)
	return err
}

func (opts *Options) dec(d decimal.Decimal) string {
	return d.StringFixed(opts.Precision)
}

func (opts *Options) nullDec(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := opts.dec(d.Decimal)
	return &s
}
