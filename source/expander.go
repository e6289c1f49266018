package source

import (
	"context"
	"strings"

	"jobcost/nodeset"
	"jobcost/process"
)

const DefaultScontrol = "scontrol"

// ScontrolExpander returns an expander that asks Slurm to expand host lists, for sites whose node
// names use syntax that the builtin expander does not handle.
func ScontrolExpander(ctx context.Context, program string, run process.Runner) nodeset.Expander {
	if program == "" {
		program = DefaultScontrol
	}
	if run == nil {
		run = process.RunSubprocess
	}
	return func(expr string) (nodeset.Set, error) {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			return nodeset.Set{}, nil
		}
		stdout, _, err := run(ctx, program, []string{"show", "hostnames", expr})
		if err != nil {
			return nil, err
		}
		return nodeset.New(strings.Fields(stdout)...), nil
	}
}
