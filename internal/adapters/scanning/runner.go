// Package scanning shells out to the external scanner tools, parses their
// textual output into detection records and enriches them with position,
// heading and vendor before they enter the pipeline.
package scanning

import (
	"context"
	"os/exec"
	"time"
)

// DefaultScanTimeout bounds each scanner subprocess.
const DefaultScanTimeout = 10 * time.Second

// CommandRunner launches scanner subprocesses with a timeout and optional
// privilege prefix (e.g. ["sudo", "-n"]).
type CommandRunner struct {
	timeout time.Duration
	prefix  []string
}

func NewCommandRunner(timeout time.Duration, prefix []string) *CommandRunner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &CommandRunner{timeout: timeout, prefix: prefix}
}

// Run executes the argument vector and returns captured stdout. The process
// is killed when the timeout or the caller's context expires.
func (r *CommandRunner) Run(ctx context.Context, argv ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := append(append([]string{}, r.prefix...), argv...)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	return cmd.Output()
}
