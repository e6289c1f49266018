// Per-job cost computation.
//
// For each configured rate, the number of the job's nodes that belong to the rate's node group is
// computed.  A rate contributes nothing (and has no entry in the row) if that number is zero, or if
// it is an energy rate and the job has no valid energy reading.  Otherwise:
//
//   time rate:    canonical * overlap * runtimeSeconds / (1000 * 3600 * 24 * 365)
//   energy rate:  canonical * joules / (1000 * 1000 * 3600)
//
// where canonical is milli-currency per node-year or per kWh (see ../units).  Energy is attributed
// in full to every energy rate whose group overlaps the job, since the reading is per job and not
// per node.

package cost

import (
	"github.com/shopspring/decimal"

	. "jobcost/common"
	"jobcost/config"
	"jobcost/jobs"
	"jobcost/nodeset"
	"jobcost/units"
)

// Fractional digits kept by divisions.  Rates are summed over dozens of entries and hundreds of
// thousands of jobs before anything is rounded for display.
const Precision = 20

// MT: Constant after initialization; immutable
var (
	timeDivisor   = decimal.NewFromInt(units.MilliUnitsPerUnit * units.SecondsPerYear)
	energyDivisor = decimal.NewFromInt(units.MilliUnitsPerUnit * units.JoulesPerKWh)
	secsPerHour   = decimal.NewFromInt(3600)
	joulesPerKWh  = decimal.NewFromInt(units.JoulesPerKWh)
)

type Row struct {
	JobID          string
	Nodes          nodeset.Set
	RuntimeSeconds uint64
	Energy         jobs.Energy
	Steps          int

	// Keyed by rate name.  Absent when no rate of that name applied to the job.
	Costs map[string]decimal.Decimal

	// Keyed by rate name; the number of the job's nodes in the group(s) of the rate.
	Overlap map[string]int

	Total decimal.Decimal
}

func (r *Row) NodeCount() int {
	return r.Nodes.Len()
}

func (r *Row) RuntimeHours() decimal.Decimal {
	return decimal.NewFromInt(int64(r.RuntimeSeconds)).DivRound(secsPerHour, Precision)
}

func (r *Row) EnergyKWh() decimal.NullDecimal {
	if !r.Energy.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: joules(r.Energy).DivRound(joulesPerKWh, Precision),
		Valid:   true,
	}
}

// Valid readings are below jobs.MaxValidEnergy and fit in an int64.
func joules(e jobs.Energy) decimal.Decimal {
	return decimal.NewFromInt(int64(e.Joules))
}

// Cost returns the cost for the rate name and whether the rate applied.
func (r *Row) Cost(rateName string) (decimal.Decimal, bool) {
	c, found := r.Costs[rateName]
	return c, found
}

type Engine struct {
	cfg    *config.Configuration
	expand nodeset.Expander
}

func NewEngine(cfg *config.Configuration, expand nodeset.Expander) *Engine {
	if expand == nil {
		expand = nodeset.Expand
	}
	return &Engine{cfg: cfg, expand: expand}
}

func (e *Engine) Configuration() *config.Configuration {
	return e.cfg
}

// Compute the cost row for the job.  The only error is a host list that cannot be expanded, which
// is a *SourceContractError.
func (e *Engine) Compute(job *jobs.Job) (*Row, error) {
	nodes, err := e.expand(job.NodeList)
	if err != nil {
		return nil, NewSourceContractError("node list", "Job %s: %v", job.JobID, err)
	}
	return e.ComputeForNodes(job, nodes), nil
}

// ComputeForNodes computes the cost row for a job whose node list has already been expanded.
func (e *Engine) ComputeForNodes(job *jobs.Job, nodes nodeset.Set) *Row {
	row := &Row{
		JobID:          job.JobID,
		Nodes:          nodes,
		RuntimeSeconds: job.RuntimeSeconds,
		Energy:         job.Energy,
		Steps:          job.Steps,
		Costs:          make(map[string]decimal.Decimal),
		Overlap:        make(map[string]int),
		Total:          decimal.Zero,
	}
	runtime := decimal.NewFromInt(int64(job.RuntimeSeconds))
	for _, rate := range e.cfg.Rates {
		overlap := nodeset.OverlapCount(nodes, rate.Group.Members)
		if overlap == 0 {
			continue
		}
		var c decimal.Decimal
		switch rate.Kind {
		case config.TimeRate:
			c = rate.Canonical.
				Mul(decimal.NewFromInt(int64(overlap))).
				Mul(runtime).
				DivRound(timeDivisor, Precision)
		case config.EnergyRate:
			if !job.Energy.Valid {
				continue
			}
			c = rate.Canonical.
				Mul(joules(job.Energy)).
				DivRound(energyDivisor, Precision)
		default:
			panic("Unknown rate kind")
		}
		row.Total = row.Total.Add(c)
		row.Costs[rate.Name] = row.Costs[rate.Name].Add(c)
		row.Overlap[rate.Name] += overlap
	}
	return row
}

// Sum folds rows into one synthetic row, for reporting a set of jobs as a single job.  Node sets
// are unioned, runtime is the maximum, energy and costs are summed.
func Sum(id string, rows []*Row) *Row {
	sum := &Row{
		JobID:   id,
		Nodes:   nodeset.Set{},
		Costs:   make(map[string]decimal.Decimal),
		Overlap: make(map[string]int),
		Total:   decimal.Zero,
	}
	for _, r := range rows {
		sum.Nodes = nodeset.Union(sum.Nodes, r.Nodes)
		sum.RuntimeSeconds = max(sum.RuntimeSeconds, r.RuntimeSeconds)
		sum.Energy = sum.Energy.Add(r.Energy)
		sum.Steps += r.Steps
		for name, c := range r.Costs {
			if prev, found := sum.Costs[name]; found {
				c = prev.Add(c)
			}
			sum.Costs[name] = c
		}
		for name, n := range r.Overlap {
			sum.Overlap[name] += n
		}
		sum.Total = sum.Total.Add(r.Total)
	}
	return sum
}
