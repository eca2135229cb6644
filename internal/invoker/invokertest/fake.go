// Package invokertest provides a scripted Invoker for pipeline tests.
package invokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalnine/expandbench/internal/invoker"
)

type Call struct {
	Executable string
	Args       []string
	Timeout    time.Duration
}

// Response is what the fake returns for one call. Effect runs first and can
// emulate side effects such as the expander writing its output file.
type Response struct {
	Result *invoker.Result
	Err    error
	Effect func(args []string) error
}

// Fake answers calls per executable from a queue; the last queued response
// repeats once the queue is drained.
type Fake struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string][]Response
}

var _ invoker.Invoker = (*Fake)(nil)

func New() *Fake {
	return &Fake{responses: make(map[string][]Response)}
}

func (f *Fake) On(executable string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[executable] = append(f.responses[executable], responses...)
	return f
}

func (f *Fake) Invoke(ctx context.Context, executable string, args []string, timeout time.Duration) (*invoker.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Executable: executable, Args: append([]string(nil), args...), Timeout: timeout})
	queue := f.responses[executable]
	if len(queue) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: no scripted response for %s", invoker.ErrSpawn, executable)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[executable] = queue[1:]
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp.Effect != nil {
		if err := resp.Effect(args); err != nil {
			return nil, err
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	res := *resp.Result
	return &res, nil
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the calls made to one executable, in order.
func (f *Fake) CallsTo(executable string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Executable == executable {
			out = append(out, c)
		}
	}
	return out
}

func Completed(stdout string) Response {
	return Response{Result: &invoker.Result{Stdout: stdout, Elapsed: 10 * time.Millisecond}}
}

func Exited(code int, stderr string) Response {
	return Response{Result: &invoker.Result{Stderr: stderr, ReturnCode: code, Elapsed: 10 * time.Millisecond}}
}

func TimedOut(after time.Duration) Response {
	return Response{Result: &invoker.Result{Elapsed: after, TimedOut: true}}
}

func SpawnFailure(executable string) Response {
	return Response{Err: fmt.Errorf("%w %s: executable file not found", invoker.ErrSpawn, executable)}
}
