package analyzer_test

import (
	"context"
	"testing"
	"time"

	"github.com/signalnine/expandbench/internal/analyzer"
	"github.com/signalnine/expandbench/internal/invoker/invokertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeArguments(t *testing.T) {
	fake := invokertest.New().On("spectector", invokertest.Completed("[program is safe]\n"))
	a := analyzer.New("spectector", fake)

	res, err := a.Analyze(context.Background(), "tests/a.muasm", 2*time.Second, []string{"-n", "-a", "reach"})
	require.NoError(t, err)
	assert.Equal(t, "[program is safe]\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"tests/a.muasm", "-n", "-a", "reach"}, calls[0].Args)
	assert.Equal(t, 2*time.Second, calls[0].Timeout)
}

func TestAnalyzeDoesNotAliasOptions(t *testing.T) {
	fake := invokertest.New().On("spectector", invokertest.Completed(""))
	a := analyzer.New("spectector", fake)
	opts := make([]string, 1, 4)
	opts[0] = "-n"

	_, err := a.Analyze(context.Background(), "a.muasm", time.Second, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"-n"}, opts)
}

func TestSplitOptions(t *testing.T) {
	assert.Equal(t, []string{"-n", "-a", "reach"}, analyzer.SplitOptions("  -n -a\treach "))
	assert.Empty(t, analyzer.SplitOptions(""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		leak   bool
	}{
		{"safe", "Analyzing...\n[program is safe]\n", false},
		{"safe with trailing blank lines", "x\n[program is safe]\n\n  \n", false},
		{"safe with trailing spaces", "[program is safe]   \r\n", false},
		{"safe single line no newline", "[program is safe]", false},
		{"unsafe", "Analyzing...\n[program is unsafe]\n", true},
		{"sentinel not last", "[program is safe]\nwarning: something\n", true},
		{"sentinel with leading space", "  [program is safe]\n", true},
		{"empty", "", true},
		{"whitespace only", "\n \n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := analyzer.Classify(tt.stdout)
			assert.Equal(t, tt.leak, v.Leak)
			assert.True(t, v.Successful)
		})
	}
}
