// Abstractions for running subprocesses and capturing their output.

package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner is the signature of RunSubprocess, so that callers can substitute canned output in tests.
type Runner func(ctx context.Context, programPath string, arguments []string) (string, string, error)

// Run the program with the arguments, collecting its output and returning it.  If there is an error
// in running the program or the program exits with a nonzero code then an error is returned along
// with stderr and stdout is empty, otherwise stdout and stderr are returned but the assumption is
// that the command exited with code zero.

func RunSubprocess(ctx context.Context, programPath string, arguments []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, programPath, arguments...)
	var stdout strings.Builder
	var stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	errs := stderr.String()
	if err != nil {
		if errs != "" {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(errs))
		}
		return "", errs, errors.Join(fmt.Errorf("While running %s", programPath), err)
	}
	outs := stdout.String()
	return outs, errs, nil
}
