// Column statistics over a table of cost rows.
//
// A column is a sequence of optional values, one per job.  Present, non-zero values are "active": a
// zero is a job the cost or measurement did not apply to.  For the active values we compute nearest-rank quantiles, the sum, and the mean and population standard
// deviation.  The "total" mean and deviation use the same formulas but divide by the number of all
// rows, inactive values counting as zero, which is the cost diluted across jobs the rate never
// applied to.

package stats

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"jobcost/cost"
)

// MT: Constant after initialization; immutable
var hundred = decimal.NewFromInt(100)

type Quantile struct {
	Percent int
	Value   decimal.Decimal

	// Percentage of the column sum reached by the sorted values up to and including this one.
	// Zero when the sum is zero.
	CumulativePercent decimal.Decimal
}

type Column struct {
	Name      string
	Quantiles []Quantile
	Sum       decimal.Decimal
	Active    int
	Total     int

	// Invalid when there are no active values.
	Mean           decimal.NullDecimal
	Deviation      decimal.NullDecimal
	TotalMean      decimal.NullDecimal
	TotalDeviation decimal.NullDecimal
}

// Percentiles returns 0, step, 2*step, ... below 100, and then 100.  The step is clamped to
// [1,100].
func Percentiles(step int) []int {
	step = min(max(step, 1), 100)
	ps := make([]int, 0, 100/step+1)
	for p := 0; p < 100; p += step {
		ps = append(ps, p)
	}
	return append(ps, 100)
}

func Summarize(name string, values []decimal.NullDecimal, step int) *Column {
	col := &Column{
		Name:  name,
		Sum:   decimal.Zero,
		Total: len(values),
	}
	active := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if v.Valid && !v.Decimal.IsZero() {
			active = append(active, v.Decimal)
		}
	}
	col.Active = len(active)
	if col.Active == 0 {
		return col
	}
	slices.SortStableFunc(active, func(a, b decimal.Decimal) int {
		return a.Cmp(b)
	})

	// prefix[i] is the sum of active[0..i]
	prefix := make([]decimal.Decimal, len(active))
	sumSq := decimal.Zero
	for i, v := range active {
		col.Sum = col.Sum.Add(v)
		prefix[i] = col.Sum
		sumSq = sumSq.Add(v.Mul(v))
	}

	for _, p := range Percentiles(step) {
		ix := (col.Active - 1) * p / 100
		q := Quantile{
			Percent:           p,
			Value:             active[ix],
			CumulativePercent: decimal.Zero,
		}
		if !col.Sum.IsZero() {
			q.CumulativePercent = prefix[ix].Mul(hundred).DivRound(col.Sum, cost.Precision)
		}
		col.Quantiles = append(col.Quantiles, q)
	}

	mean, dev := moments(col.Sum, sumSq, col.Active)
	col.Mean = valid(mean)
	col.Deviation = valid(dev)
	mean, dev = moments(col.Sum, sumSq, col.Total)
	col.TotalMean = valid(mean)
	col.TotalDeviation = valid(dev)
	return col
}

// Population mean and standard deviation from the sum and the sum of squares of n values, n > 0.
func moments(sum, sumSq decimal.Decimal, n int) (mean, deviation decimal.Decimal) {
	count := decimal.NewFromInt(int64(n))
	mean = sum.DivRound(count, cost.Precision)
	variance := sumSq.DivRound(count, cost.Precision).Sub(mean.Mul(mean))
	if variance.Sign() <= 0 {
		return mean, decimal.Zero
	}
	return mean, Sqrt(variance)
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Sqrt computes the square root of a nonnegative decimal to cost.Precision fractional digits by
// Newton iteration, starting from the float64 estimate.  The result for a negative argument is zero.
func Sqrt(x decimal.Decimal) decimal.Decimal {
	if x.Sign() <= 0 {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	guess := decimal.NewFromFloat(math.Sqrt(x.InexactFloat64()))
	if guess.Sign() <= 0 {
		guess = decimal.NewFromInt(1)
	}
	for range 100 {
		next := guess.Add(x.DivRound(guess, cost.Precision)).DivRound(two, cost.Precision)
		if next.Equal(guess) {
			break
		}
		guess = next
	}
	return guess.Round(cost.Precision - 2)
}

// Column names used by Table, in addition to one column per rate name.
const (
	NodesColumn   = "Nodes"
	RuntimeColumn = "Runtime[h]"
	EnergyColumn  = "Energy[kWh]"
	TotalColumn   = "Total"
)

// Table summarizes the standard columns of a set of cost rows: node count, runtime, energy, one
// column per rate name in the order given, and the total cost.
func Table(rows []*cost.Row, rateNames []string, step int) []*Column {
	n := len(rows)
	nodes := make([]decimal.NullDecimal, n)
	runtime := make([]decimal.NullDecimal, n)
	energy := make([]decimal.NullDecimal, n)
	total := make([]decimal.NullDecimal, n)
	perRate := make([][]decimal.NullDecimal, len(rateNames))
	for i := range perRate {
		perRate[i] = make([]decimal.NullDecimal, n)
	}
	for i, r := range rows {
		nodes[i] = valid(decimal.NewFromInt(int64(r.NodeCount())))
		runtime[i] = valid(r.RuntimeHours())
		energy[i] = r.EnergyKWh()
		total[i] = valid(r.Total)
		for j, name := range rateNames {
			if c, found := r.Cost(name); found {
				perRate[j][i] = valid(c)
			}
		}
	}

	columns := []*Column{
		Summarize(NodesColumn, nodes, step),
		Summarize(RuntimeColumn, runtime, step),
		Summarize(EnergyColumn, energy, step),
	}
	for j, name := range rateNames {
		columns = append(columns, Summarize(name, perRate[j], step))
	}
	return append(columns, Summarize(TotalColumn, total, step))
}
