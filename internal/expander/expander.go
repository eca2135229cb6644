// Package expander drives the external loop-expander tool that unrolls loops
// in a program before it is analyzed.
package expander

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/expandbench/internal/invoker"
	"github.com/signalnine/expandbench/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultLimit is the expansion limit used when none is configured.
const DefaultLimit = 3

type Expander struct {
	Path    string
	Timeout time.Duration
	Invoker invoker.Invoker
}

func New(path string, timeout time.Duration, inv invoker.Invoker) *Expander {
	return &Expander{Path: path, Timeout: timeout, Invoker: inv}
}

// Expand writes the expanded form of inputPath to outputPath, unrolling each
// loop at most limit times. It reports success only for exit code 0; every
// failure is logged here and never returned. The caller owns outputPath.
func (e *Expander) Expand(ctx context.Context, inputPath, outputPath string, limit int) bool {
	logger := logging.GetLogger().WithFields(logrus.Fields{
		"file":  inputPath,
		"limit": limit,
	})
	if limit < 1 {
		logger.Error("Expansion limit must be a positive integer")
		return false
	}

	in, err := filepath.Abs(inputPath)
	if err != nil {
		logger.WithError(err).Error("Resolving loop_expander input")
		return false
	}
	out, err := filepath.Abs(outputPath)
	if err != nil {
		logger.WithError(err).Error("Resolving loop_expander output")
		return false
	}

	res, err := e.Invoker.Invoke(ctx, e.Path, []string{"-i", in, "-o", out, "-n", strconv.Itoa(limit)}, e.Timeout)
	if err != nil {
		logger.WithError(err).Error("Error running loop_expander")
		return false
	}
	if res.TimedOut {
		logger.WithField("timeout", e.Timeout).Error("loop_expander timed out")
		return false
	}
	if res.ReturnCode != 0 {
		logger.WithFields(logrus.Fields{
			"return_code": res.ReturnCode,
			"stdout":      res.Stdout,
			"stderr":      res.Stderr,
		}).Error("Error running loop_expander")
		return false
	}
	return true
}

// Render runs the expander without an output path and returns the expanded
// program it prints on stdout. Loops are unrolled with the tool's own default.
func (e *Expander) Render(ctx context.Context, inputPath string) (string, error) {
	in, err := filepath.Abs(inputPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", inputPath, err)
	}
	res, err := e.Invoker.Invoke(ctx, e.Path, []string{"-i", in}, e.Timeout)
	if err != nil {
		return "", fmt.Errorf("running loop_expander on %s: %w", inputPath, err)
	}
	if res.TimedOut {
		return "", fmt.Errorf("loop_expander on %s timed out after %s", inputPath, e.Timeout)
	}
	if res.ReturnCode != 0 {
		return "", fmt.Errorf("loop_expander on %s exited with code %d: %s", inputPath, res.ReturnCode, res.Stderr)
	}
	return res.Stdout, nil
}
