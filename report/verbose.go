package report

import (
	"fmt"
	"io"
	"strconv"

	"jobcost/cost"
	"jobcost/jobs"
	"jobcost/stats"
	"jobcost/table"
)

// Field names of the job table.  A rate field is named by the rate, unless that collides with one
// of these.
const (
	fieldJobID    = "JobID"
	fieldNodes    = "Nodes"
	fieldNodeList = "NodeList"
	fieldElapsed  = "Elapsed"
	fieldRuntime  = "Runtime[h]"
	fieldEnergy   = "Energy[kWh]"
	fieldSteps    = "Steps"
	fieldTotal    = "Total"
)

func missing(mods table.PrintMods) string {
	if mods&(table.PrintModFixed|table.PrintModAwk) != 0 {
		return "-"
	}
	return ""
}

func jobFormatters(rateNames []string, opts *Options) (map[string]table.Formatter, map[string][]string) {
	row := func(x any) *cost.Row { return x.(*cost.Row) }
	formatters := map[string]table.Formatter{
		fieldJobID: {
			Fmt:  func(x any, _ table.PrintMods) string { return row(x).JobID },
			Help: "Job ID",
		},
		fieldNodes: {
			Fmt:  func(x any, _ table.PrintMods) string { return strconv.Itoa(row(x).NodeCount()) },
			Help: "Number of nodes",
		},
		fieldNodeList: {
			Fmt:  func(x any, _ table.PrintMods) string { return row(x).Nodes.Compress() },
			Help: "Nodes in host list notation",
		},
		fieldElapsed: {
			Fmt:  func(x any, _ table.PrintMods) string { return jobs.FormatElapsed(row(x).RuntimeSeconds) },
			Help: "Runtime as [d-]hh:mm:ss",
		},
		fieldRuntime: {
			Fmt:  func(x any, _ table.PrintMods) string { return opts.dec(row(x).RuntimeHours()) },
			Help: "Runtime in hours",
		},
		fieldEnergy: {
			Fmt: func(x any, mods table.PrintMods) string {
				if e := opts.nullDec(row(x).EnergyKWh()); e != nil {
					return *e
				}
				return missing(mods)
			},
			Help: "Energy in kWh, if measured",
		},
		fieldSteps: {
			Fmt:  func(x any, _ table.PrintMods) string { return strconv.Itoa(row(x).Steps) },
			Help: "Number of job steps",
		},
		fieldTotal: {
			Fmt:  func(x any, _ table.PrintMods) string { return opts.dec(row(x).Total) },
			Help: "Total cost",
		},
	}
	defaults := []string{fieldJobID, fieldNodes, fieldRuntime, fieldEnergy}
	for _, name := range rateNames {
		if _, found := formatters[name]; found {
			continue
		}
		formatters[name] = table.Formatter{
			Fmt: func(x any, mods table.PrintMods) string {
				if c, found := row(x).Cost(name); found {
					return opts.dec(c)
				}
				return missing(mods)
			},
			Help: "Cost for rate " + name,
		}
		defaults = append(defaults, name)
	}
	defaults = append(defaults, fieldTotal)
	all := append([]string{fieldJobID, fieldNodes, fieldNodeList, fieldElapsed, fieldRuntime, fieldEnergy, fieldSteps},
		defaults[4:]...)
	return formatters, map[string][]string{"default": defaults, "all": all}
}

func renderJobs(out io.Writer, r *Report, opts *Options, spec string) error {
	formatters, aliases := jobFormatters(r.Config.RateNames(), opts)
	if spec == "help" {
		table.FormatHelp(out, formatters, aliases)
		return nil
	}
	fields, others, err := table.ParseFormatSpec("default", spec, formatters, aliases)
	if err != nil {
		return err
	}
	data := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		data[i] = row
	}
	table.FormatData(out, fields, formatters, table.StandardFormatOptions(others), data)
	return nil
}

func renderVerbose(out io.Writer, r *Report, opts *Options) error {
	fmt.Fprintf(out, "Currency: %s\n\nRates:\n", r.Config.Currency)
	renderRates(out, r)

	fmt.Fprintf(out, "\nJobs: %d", len(r.Rows))
	if r.Dropped > 0 {
		fmt.Fprintf(out, " (%d without nodes not costed)", r.Dropped)
	}
	fmt.Fprintln(out)
	if err := renderJobs(out, r, opts, ""); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nStatistics:")
	renderStatistics(out, r, opts)

	fmt.Fprintln(out, "\nQuantiles (value, cumulative percent):")
	renderQuantiles(out, r, opts)

	_, err := fmt.Fprintf(out, "\nTotal: %s %s\n", opts.dec(r.Total()), r.Config.Currency)
	return err
}

func renderRates(out io.Writer, r *Report) {
	formatters := map[string]table.Formatter{
		"Group":  {Fmt: func(x any, _ table.PrintMods) string { return x.(*RateDoc).Group }},
		"Nodes":  {Fmt: func(x any, _ table.PrintMods) string { return x.(*RateDoc).Nodes }},
		"Rate":   {Fmt: func(x any, _ table.PrintMods) string { return x.(*RateDoc).Name }},
		"Kind":   {Fmt: func(x any, _ table.PrintMods) string { return x.(*RateDoc).Kind }},
		"Amount": {Fmt: func(x any, _ table.PrintMods) string { return x.(*RateDoc).Value + " " + x.(*RateDoc).Unit }},
	}
	fields, _, _ := table.ParseFormatSpec("Group,Nodes,Rate,Kind,Amount", "", formatters, nil)
	doc := NewDocument(&Report{Config: r.Config}, &Options{})
	data := make([]any, len(doc.Rates))
	for i := range doc.Rates {
		data[i] = &doc.Rates[i]
	}
	table.FormatData(out, fields, formatters, &table.FormatOptions{Fixed: true, Header: true}, data)
}

func renderStatistics(out io.Writer, r *Report, opts *Options) {
	col := func(x any) *stats.Column { return x.(*stats.Column) }
	nullable := func(f func(c *stats.Column) *string) func(any, table.PrintMods) string {
		return func(x any, mods table.PrintMods) string {
			if s := f(col(x)); s != nil {
				return *s
			}
			return missing(mods)
		}
	}
	formatters := map[string]table.Formatter{
		"Column": {Fmt: func(x any, _ table.PrintMods) string { return col(x).Name }},
		"Active": {Fmt: func(x any, _ table.PrintMods) string { return strconv.Itoa(col(x).Active) }},
		"Count":  {Fmt: func(x any, _ table.PrintMods) string { return strconv.Itoa(col(x).Total) }},
		"Sum":    {Fmt: func(x any, _ table.PrintMods) string { return opts.dec(col(x).Sum) }},
		"Mean": {Fmt: nullable(func(c *stats.Column) *string {
			return opts.nullDec(c.Mean)
		})},
		"StdDev": {Fmt: nullable(func(c *stats.Column) *string {
			return opts.nullDec(c.Deviation)
		})},
		"Mean(all)": {Fmt: nullable(func(c *stats.Column) *string {
			return opts.nullDec(c.TotalMean)
		})},
		"StdDev(all)": {Fmt: nullable(func(c *stats.Column) *string {
			return opts.nullDec(c.TotalDeviation)
		})},
	}
	fields, _, _ := table.ParseFormatSpec(
		"Column,Active,Count,Sum,Mean,StdDev,Mean(all),StdDev(all)", "", formatters, nil)
	data := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		data[i] = c
	}
	table.FormatData(out, fields, formatters, &table.FormatOptions{Fixed: true, Header: true}, data)
}

// One row per percentile, one column per statistics column.
func renderQuantiles(out io.Writer, r *Report, opts *Options) {
	percentiles := make([]int, 0)
	for _, c := range r.Columns {
		if len(c.Quantiles) > len(percentiles) {
			percentiles = percentiles[:0]
			for _, q := range c.Quantiles {
				percentiles = append(percentiles, q.Percent)
			}
		}
	}
	if len(percentiles) == 0 {
		fmt.Fprintln(out, "(no data)")
		return
	}
	formatters := map[string]table.Formatter{
		"Percentile": {Fmt: func(x any, _ table.PrintMods) string { return strconv.Itoa(percentiles[x.(int)]) }},
	}
	fields := []table.FieldSpec{{Name: "Percentile", Header: "Percentile"}}
	for i, c := range r.Columns {
		key := "column" + strconv.Itoa(i)
		formatters[key] = table.Formatter{
			Fmt: func(x any, mods table.PrintMods) string {
				ix := x.(int)
				if ix >= len(c.Quantiles) {
					return missing(mods)
				}
				q := c.Quantiles[ix]
				return fmt.Sprintf("%s (%s%%)", opts.dec(q.Value), opts.dec(q.CumulativePercent))
			},
		}
		fields = append(fields, table.FieldSpec{Name: key, Header: c.Name})
	}
	data := make([]any, len(percentiles))
	for i := range percentiles {
		data[i] = i
	}
	table.FormatData(out, fields, formatters, &table.FormatOptions{Fixed: true, Header: true}, data)
}
