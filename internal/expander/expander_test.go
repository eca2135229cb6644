package expander_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/expandbench/internal/expander"
	"github.com/signalnine/expandbench/internal/invoker/invokertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tool = "./loop_expander/go-project"

func TestExpandPassesFlags(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sample1.muasm")
	out := in + ".loop_expanded.muasm"

	fake := invokertest.New().On(tool, invokertest.Response{
		Result: invokertest.Completed("").Result,
		Effect: func(args []string) error {
			return os.WriteFile(args[3], []byte("expanded"), 0o644)
		},
	})
	e := expander.New(tool, time.Minute, fake)

	require.True(t, e.Expand(context.Background(), in, out, 3))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"-i", in, "-o", out, "-n", "3"}, calls[0].Args)
	assert.Equal(t, time.Minute, calls[0].Timeout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "expanded", string(data))
}

func TestExpandMakesPathsAbsolute(t *testing.T) {
	fake := invokertest.New().On(tool, invokertest.Completed(""))
	e := expander.New(tool, 0, fake)

	require.True(t, e.Expand(context.Background(), "tests/a.muasm", "tests/a.muasm.loop_expanded.muasm", 5))

	args := fake.Calls()[0].Args
	assert.True(t, filepath.IsAbs(args[1]))
	assert.True(t, filepath.IsAbs(args[3]))
	assert.Equal(t, "5", args[5])
}

func TestExpandFailures(t *testing.T) {
	tests := []struct {
		name string
		resp invokertest.Response
	}{
		{"non-zero exit", invokertest.Exited(1, "parse error")},
		{"spawn failure", invokertest.SpawnFailure(tool)},
		{"timeout", invokertest.TimedOut(time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := expander.New(tool, time.Second, invokertest.New().On(tool, tt.resp))
			assert.False(t, e.Expand(context.Background(), "a.muasm", "b.muasm", 3))
		})
	}
}

func TestExpandRejectsNonPositiveLimit(t *testing.T) {
	fake := invokertest.New().On(tool, invokertest.Completed(""))
	e := expander.New(tool, 0, fake)

	assert.False(t, e.Expand(context.Background(), "a.muasm", "b.muasm", 0))
	assert.Empty(t, fake.Calls())
}

func TestRender(t *testing.T) {
	fake := invokertest.New().On(tool, invokertest.Completed("beqz x, end\n"))
	e := expander.New(tool, 0, fake)

	program, err := e.Render(context.Background(), "a.muasm")
	require.NoError(t, err)
	assert.Equal(t, "beqz x, end\n", program)
	assert.Len(t, fake.Calls()[0].Args, 2)
}

func TestRenderNonZeroExit(t *testing.T) {
	e := expander.New(tool, 0, invokertest.New().On(tool, invokertest.Exited(2, "boom")))

	_, err := e.Render(context.Background(), "a.muasm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
