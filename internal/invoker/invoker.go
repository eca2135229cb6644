// Package invoker runs the external tools of the pipeline and captures what
// they print, how they exited and how long they took.
package invoker

import (
	"context"
	"errors"
	"time"
)

// ErrSpawn marks an invocation that never produced a process: a missing
// binary, a permission error, an unreachable container runtime.
var ErrSpawn = errors.New("spawning process")

// Result is the outcome of one invocation that actually ran. When TimedOut is
// set the process was killed and Stdout, Stderr and ReturnCode carry nothing.
type Result struct {
	Stdout     string
	Stderr     string
	ReturnCode int
	Elapsed    time.Duration
	TimedOut   bool
}

// Invoker runs executable with args. A timeout <= 0 means no bound. A timeout
// is reported through Result.TimedOut, a non-zero exit through
// Result.ReturnCode; only spawn failures (wrapping ErrSpawn) and
// cancellation of ctx are returned as errors.
type Invoker interface {
	Invoke(ctx context.Context, executable string, args []string, timeout time.Duration) (*Result, error)
}

func timeoutContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func deadlineHit(runCtx context.Context) bool {
	return errors.Is(runCtx.Err(), context.DeadlineExceeded)
}
