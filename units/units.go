// Rate units.
//
// A rate is written as `<value> <prefix>/<period>` for time rates and `<value> <prefix>/kWh` for
// energy rates.  The prefix scales the currency's base unit and the period is the time span the
// value applies to (per node).  Internally every rate is normalized to a canonical scale:
//
//   time rates:   milli-currency per node per year
//   energy rates: milli-currency per kWh
//
// so that mixed units can be combined without any rounding.  The factors returned here are what the
// configured value must be multiplied by to reach the canonical scale.
//
//   prefix  M = 10^6, k = 10^3, 1 = 1, c = 10^-2, m = 10^-3   (times 1000 for milli-units)
//   period  a = 1, mon = 12, w = 52, d = 365, h = 365*24, min = 365*24*60, s = 365*24*3600

package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Divisors that take a canonical value back to currency, see the cost package.
	SecondsPerYear    = 365 * 24 * 3600
	JoulesPerKWh      = 3600 * 1000
	MilliUnitsPerUnit = 1000
)

type UnitError struct {
	Unit   string
	Reason string
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("Invalid unit '%s': %s", e.Unit, e.Reason)
}

// MT: Constant after initialization; immutable
var (
	prefixes = map[string]decimal.Decimal{
		"M": decimal.New(1, 9),
		"k": decimal.New(1, 6),
		"1": decimal.New(1, 3),
		"c": decimal.New(1, 1),
		"m": decimal.New(1, 0),
	}
	periods = map[string]decimal.Decimal{
		"a":   decimal.NewFromInt(1),
		"mon": decimal.NewFromInt(12),
		"w":   decimal.NewFromInt(52),
		"d":   decimal.NewFromInt(365),
		"h":   decimal.NewFromInt(365 * 24),
		"min": decimal.NewFromInt(365 * 24 * 60),
		"s":   decimal.NewFromInt(SecondsPerYear),
	}
)

// ParseTimeUnit returns the factor that takes a value in unit `s`, eg "k/mon", to milli-currency
// per year.
func ParseTimeUnit(s string) (decimal.Decimal, error) {
	prefix, period, err := split(s)
	if err != nil {
		return decimal.Zero, err
	}
	pf, found := periods[period]
	if !found {
		return decimal.Zero, &UnitError{s, fmt.Sprintf("unknown period '%s'", period)}
	}
	return prefix.Mul(pf), nil
}

// ParseEnergyUnit returns the factor that takes a value in unit `s`, eg "c/kWh", to milli-currency
// per kWh.
func ParseEnergyUnit(s string) (decimal.Decimal, error) {
	prefix, per, err := split(s)
	if err != nil {
		return decimal.Zero, err
	}
	if per != "kWh" {
		return decimal.Zero, &UnitError{s, fmt.Sprintf("expected '/kWh', got '/%s'", per)}
	}
	return prefix, nil
}

func split(s string) (decimal.Decimal, string, error) {
	before, after, found := strings.Cut(s, "/")
	if !found {
		return decimal.Zero, "", &UnitError{s, "missing '/'"}
	}
	pf, found := prefixes[before]
	if !found {
		return decimal.Zero, "", &UnitError{s, fmt.Sprintf("unknown prefix '%s'", before)}
	}
	return pf, after, nil
}
