// Error taxonomy.
//
// ConfigError is bad or contradictory input in the rate configuration; it collects every problem
// found so that the operator can fix them all in one pass.
//
// SourceContractError means the accounting source handed us data that violates the shape we rely
// on (an unparseable elapsed time, a step without its job, a short row).  It is always fatal: it
// indicates a version or environment mismatch, not bad data, and retrying will not help.
//
// A missing energy reading is not an error; see jobs.Energy.

package common

import (
	"fmt"
	"strings"
)

type ConfigError struct {
	Messages []string
}

func (e *ConfigError) Error() string {
	if len(e.Messages) == 1 {
		return "Configuration error: " + e.Messages[0]
	}
	return fmt.Sprintf("%d configuration errors:\n  %s", len(e.Messages), strings.Join(e.Messages, "\n  "))
}

func (e *ConfigError) Add(line int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if line > 0 {
		msg = fmt.Sprintf("Line %d: %s", line, msg)
	}
	e.Messages = append(e.Messages, msg)
}

func (e *ConfigError) Empty() bool {
	return len(e.Messages) == 0
}

type SourceContractError struct {
	Source string
	Detail string
}

func (e *SourceContractError) Error() string {
	return fmt.Sprintf("Unexpected data from %s (environment or version mismatch?): %s", e.Source, e.Detail)
}

func NewSourceContractError(source, format string, args ...any) *SourceContractError {
	return &SourceContractError{Source: source, Detail: fmt.Sprintf(format, args...)}
}
