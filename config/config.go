// Rate configuration.
//
// The configuration file is line-oriented.  A `#` starts a comment that runs to the end of the line;
// blank lines are ignored.  Every remaining line is one directive:
//
//   currency <name>                          # at most once
//   nodes <group-name> <hostlist>            # starts a node group
//   rate <rate-name> <value> <prefix>/<period>
//   energy-rate <rate-name> <value> <prefix>/kWh
//
// A rate applies to the node group declared most recently before it, so a rate may not precede the
// first `nodes` directive.  See ../units for prefixes and periods.  Example:
//
//   currency NOK
//   nodes Standard c1-[1-64]
//   rate Hardware 120000 1/a
//   energy-rate Power 95 c/kWh
//   nodes GPU gpu-[1-8]
//   rate Hardware 1.2 M/a
//
// Rate names need not be unique across groups: the cost of a rate name is summed over all groups it
// is declared for, so "Hardware" above is one column in reports.  A rate name may not be declared
// twice for the same group, however.

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"jobcost/common"
	"jobcost/nodeset"
	"jobcost/units"
)

const DefaultCurrency = "CU"

type RateKind int

const (
	TimeRate RateKind = iota
	EnergyRate
)

func (k RateKind) String() string {
	switch k {
	case TimeRate:
		return "rate"
	case EnergyRate:
		return "energy-rate"
	default:
		panic("Unknown rate kind")
	}
}

type NodeGroup struct {
	Name    string
	Pattern string // as written
	Members nodeset.Set
}

type Rate struct {
	Name      string
	Kind      RateKind
	Group     *NodeGroup
	Value     decimal.Decimal // as written
	Unit      string          // as written
	Canonical decimal.Decimal // milli-currency per node-year, or per kWh
	Line      int
}

// Configuration is immutable after Parse returns it.
type Configuration struct {
	Currency string
	Groups   []*NodeGroup
	Rates    []*Rate
}

// RateNames returns the distinct rate names in declaration order.
func (c *Configuration) RateNames() []string {
	names := make([]string, 0, len(c.Rates))
	seen := make(map[string]bool)
	for _, r := range c.Rates {
		if !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	}
	return names
}

func (c *Configuration) Group(name string) *NodeGroup {
	for _, g := range c.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

func ParseFile(filename string, expand nodeset.Expander) (*Configuration, error) {
	input, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer input.Close()
	cfg, err := ParseWithExpander(input, expand)
	if err != nil {
		return nil, fmt.Errorf("In %s: %w", filename, err)
	}
	return cfg, nil
}

func Parse(input io.Reader) (*Configuration, error) {
	return ParseWithExpander(input, nodeset.Expand)
}

// ParseWithExpander parses the configuration, expanding host lists with `expand`.  On failure the
// error is a *common.ConfigError carrying every problem found, or an I/O error.
func ParseWithExpander(input io.Reader, expand nodeset.Expander) (*Configuration, error) {
	cfg := &Configuration{}
	errs := new(common.ConfigError)
	var currentGroup *NodeGroup
	currencySeen := false
	ratesInGroup := make(map[string]bool)

	scanner := bufio.NewScanner(input)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		l, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}
		directive, args := fields[0], fields[1:]

		switch directive {
		case "currency":
			if len(args) != 1 {
				errs.Add(lineNo, "Expected `currency <name>`")
				continue
			}
			if currencySeen {
				errs.Add(lineNo, "Currency can only be set once")
				continue
			}
			currencySeen = true
			cfg.Currency = args[0]

		case "nodes":
			if len(args) != 2 {
				errs.Add(lineNo, "Expected `nodes <name> <hostlist>`")
				continue
			}
			if cfg.Group(args[0]) != nil {
				errs.Add(lineNo, "Node group %s is already defined", args[0])
				continue
			}
			members, err := expand(args[1])
			if err != nil {
				errs.Add(lineNo, "Node group %s: Bad host list '%s': %v", args[0], args[1], err)
				continue
			}
			currentGroup = &NodeGroup{
				Name:    args[0],
				Pattern: args[1],
				Members: members,
			}
			cfg.Groups = append(cfg.Groups, currentGroup)
			ratesInGroup = make(map[string]bool)

		case "rate", "energy-rate":
			kind := TimeRate
			if directive == "energy-rate" {
				kind = EnergyRate
			}
			r, ok := parseRate(lineNo, kind, args, errs)
			if currentGroup == nil {
				errs.Add(lineNo, "%s %s appears before any nodes directive", kind, rateName(args))
				continue
			}
			if !ok {
				continue
			}
			if ratesInGroup[r.Name] {
				errs.Add(lineNo, "Rate %s is already defined for node group %s", r.Name, currentGroup.Name)
				continue
			}
			ratesInGroup[r.Name] = true
			r.Group = currentGroup
			cfg.Rates = append(cfg.Rates, r)

		default:
			errs.Add(lineNo, "Unknown directive '%s'", directive)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !errs.Empty() {
		return nil, errs
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	return cfg, nil
}

func rateName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "(unnamed)"
}

// Errors are added to errs; the Rate is returned without its Group.
func parseRate(lineNo int, kind RateKind, args []string, errs *common.ConfigError) (*Rate, bool) {
	if len(args) != 3 {
		errs.Add(lineNo, "Expected `%s <name> <value> <unit>`", kind)
		return nil, false
	}
	name, valueStr, unit := args[0], args[1], args[2]
	ok := true

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		errs.Add(lineNo, "Rate %s: Bad value '%s'", name, valueStr)
		ok = false
	} else if value.IsNegative() {
		errs.Add(lineNo, "Rate %s: Negative value '%s'", name, valueStr)
		ok = false
	}

	var factor decimal.Decimal
	switch kind {
	case TimeRate:
		factor, err = units.ParseTimeUnit(unit)
	case EnergyRate:
		factor, err = units.ParseEnergyUnit(unit)
	default:
		panic("Unknown rate kind")
	}
	if err != nil {
		errs.Add(lineNo, "Rate %s: %v", name, err)
		ok = false
	}

	if !ok {
		return nil, false
	}
	return &Rate{
		Name:      name,
		Kind:      kind,
		Value:     value,
		Unit:      unit,
		Canonical: value.Mul(factor),
		Line:      lineNo,
	}, true
}
