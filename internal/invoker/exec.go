package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const defaultWaitDelay = 2 * time.Second

// Exec runs tools as local child processes.
type Exec struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// WaitDelay bounds how long output pipes may stay open after the
	// process group is killed (a descendant that left the group can hold
	// them).
	WaitDelay time.Duration
}

var _ Invoker = (*Exec)(nil)

func (e *Exec) Invoke(ctx context.Context, executable string, args []string, timeout time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	runCtx, cancel := timeoutContext(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, executable, args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	// Wait only returns after Cancel has run, so killedAfter is safe to read
	// once it does.
	var killedAfter time.Duration
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killedAfter = time.Since(start)
		return killProcessGroup(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrSpawn, executable, err)
	}
	err := cmd.Wait()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if deadlineHit(runCtx) {
			if killedAfter > 0 {
				elapsed = killedAfter
			}
			return &Result{Elapsed: elapsed, TimedOut: true}, nil
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("waiting for %s: %w", executable, err)
		}
		return &Result{
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			ReturnCode: exitErr.ExitCode(),
			Elapsed:    elapsed,
		}, nil
	}

	return &Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: elapsed,
	}, nil
}
