// Package analyzer drives the spectector leakage analyzer and interprets its
// verdict.
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/signalnine/expandbench/internal/invoker"
)

type Analyzer struct {
	Path    string
	Invoker invoker.Invoker
}

func New(path string, inv invoker.Invoker) *Analyzer {
	return &Analyzer{Path: path, Invoker: inv}
}

// Analyze runs the analyzer on inputPath followed by options. Callers check
// the result in order: TimedOut, then a non-zero ReturnCode, and only then
// Classify the output.
func (a *Analyzer) Analyze(ctx context.Context, inputPath string, timeout time.Duration, options []string) (*invoker.Result, error) {
	args := append([]string{inputPath}, options...)
	return a.Invoker.Invoke(ctx, a.Path, args, timeout)
}

// SplitOptions turns a flag string such as "-n -a reach" into tokens.
func SplitOptions(s string) []string {
	return strings.Fields(s)
}
