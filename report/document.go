package report

import (
	"jobcost/stats"
)

// Document is the structured form of a report.  Decimals are strings at display precision, so
// that consumers never see binary floating point; absent values are omitted.
type Document struct {
	Currency   string      `json:"currency" yaml:"currency"`
	Total      string      `json:"total" yaml:"total"`
	Dropped    int         `json:"dropped" yaml:"dropped"`
	Rates      []RateDoc   `json:"rates" yaml:"rates"`
	Jobs       []JobDoc    `json:"jobs" yaml:"jobs"`
	Statistics []ColumnDoc `json:"statistics" yaml:"statistics"`
}

type RateDoc struct {
	Name  string `json:"name" yaml:"name"`
	Kind  string `json:"kind" yaml:"kind"`
	Group string `json:"group" yaml:"group"`
	Nodes string `json:"nodes" yaml:"nodes"`
	Value string `json:"value" yaml:"value"`
	Unit  string `json:"unit" yaml:"unit"`
}

type JobDoc struct {
	JobID        string            `json:"job_id" yaml:"job_id"`
	Nodes        int               `json:"nodes" yaml:"nodes"`
	NodeList     string            `json:"node_list" yaml:"node_list"`
	Steps        int               `json:"steps" yaml:"steps"`
	RuntimeHours string            `json:"runtime_hours" yaml:"runtime_hours"`
	EnergyKWh    *string           `json:"energy_kwh,omitempty" yaml:"energy_kwh,omitempty"`
	Costs        map[string]string `json:"costs" yaml:"costs"`
	Total        string            `json:"total" yaml:"total"`
}

type ColumnDoc struct {
	Name           string        `json:"name" yaml:"name"`
	Active         int           `json:"active" yaml:"active"`
	Count          int           `json:"count" yaml:"count"`
	Sum            string        `json:"sum" yaml:"sum"`
	Mean           *string       `json:"mean,omitempty" yaml:"mean,omitempty"`
	Deviation      *string       `json:"deviation,omitempty" yaml:"deviation,omitempty"`
	TotalMean      *string       `json:"total_mean,omitempty" yaml:"total_mean,omitempty"`
	TotalDeviation *string       `json:"total_deviation,omitempty" yaml:"total_deviation,omitempty"`
	Quantiles      []QuantileDoc `json:"quantiles,omitempty" yaml:"quantiles,omitempty"`
}

type QuantileDoc struct {
	Percent           int    `json:"percent" yaml:"percent"`
	Value             string `json:"value" yaml:"value"`
	CumulativePercent string `json:"cumulative_percent" yaml:"cumulative_percent"`
}

func NewDocument(r *Report, opts *Options) *Document {
	doc := &Document{
		Currency:   r.Config.Currency,
		Total:      opts.dec(r.Total()),
		Dropped:    r.Dropped,
		Rates:      make([]RateDoc, 0, len(r.Config.Rates)),
		Jobs:       make([]JobDoc, 0, len(r.Rows)),
		Statistics: make([]ColumnDoc, 0, len(r.Columns)),
	}
	for _, rate := range r.Config.Rates {
		doc.Rates = append(doc.Rates, RateDoc{
			Name:  rate.Name,
			Kind:  rate.Kind.String(),
			Group: rate.Group.Name,
			Nodes: rate.Group.Pattern,
			Value: rate.Value.String(),
			Unit:  rate.Unit,
		})
	}
	for _, row := range r.Rows {
		job := JobDoc{
			JobID:        row.JobID,
			Nodes:        row.NodeCount(),
			NodeList:     row.Nodes.Compress(),
			Steps:        row.Steps,
			RuntimeHours: opts.dec(row.RuntimeHours()),
			EnergyKWh:    opts.nullDec(row.EnergyKWh()),
			Costs:        make(map[string]string, len(row.Costs)),
			Total:        opts.dec(row.Total),
		}
		for name, c := range row.Costs {
			job.Costs[name] = opts.dec(c)
		}
		doc.Jobs = append(doc.Jobs, job)
	}
	for _, c := range r.Columns {
		doc.Statistics = append(doc.Statistics, columnDoc(c, opts))
	}
	return doc
}

func columnDoc(c *stats.Column, opts *Options) ColumnDoc {
	cd := ColumnDoc{
		Name:           c.Name,
		Active:         c.Active,
		Count:          c.Total,
		Sum:            opts.dec(c.Sum),
		Mean:           opts.nullDec(c.Mean),
		Deviation:      opts.nullDec(c.Deviation),
		TotalMean:      opts.nullDec(c.TotalMean),
		TotalDeviation: opts.nullDec(c.TotalDeviation),
	}
	for _, q := range c.Quantiles {
		cd.Quantiles = append(cd.Quantiles, QuantileDoc{
			Percent:           q.Percent,
			Value:             opts.dec(q.Value),
			CumulativePercent: opts.dec(q.CumulativePercent),
		})
	}
	return cd
}
