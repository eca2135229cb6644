package runner

import (
	"context"
	"fmt"

	"github.com/signalnine/expandbench/internal/compare"
	"github.com/signalnine/expandbench/internal/corpus"
	"github.com/signalnine/expandbench/internal/logging"
	"github.com/signalnine/expandbench/internal/result"
)

// Summary holds one comparison table per expansion limit.
type Summary struct {
	Limits   []int
	Tables   map[int]*compare.Table
	Outcomes map[Outcome]int
	Files    int
}

func NewSummary(limits []int) *Summary {
	s := &Summary{
		Limits:   append([]int(nil), limits...),
		Tables:   make(map[int]*compare.Table, len(limits)),
		Outcomes: make(map[Outcome]int),
	}
	for _, l := range limits {
		s.Tables[l] = &compare.Table{}
	}
	return s
}

func (s *Summary) Table(limit int) *compare.Table {
	return s.Tables[limit]
}

// OutcomeCounts is Outcomes keyed by label, for serialization.
func (s *Summary) OutcomeCounts() map[string]int {
	out := make(map[string]int, len(s.Outcomes))
	for o, n := range s.Outcomes {
		out[string(o)] = n
	}
	return out
}

// Run processes files one at a time: every proposed limit, then the
// baseline, then the comparison rows. Rows are built from this run's records;
// a variant whose metrics could not be saved is left out of the comparison.
// A failing file never stops the loop; only cancellation of ctx does,
// returning the partial summary with the error.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Summary, error) {
	summary := NewSummary(p.Options.Limits)
	for i, file := range files {
		name := corpus.Rel(p.Options.Root, file)
		logger := logging.GetLogger().WithField("file", file)
		fmt.Printf("[%d/%d] %s\n", i+1, len(files), name)

		proposed := make(map[int]result.Record, len(p.Options.Limits))
		for _, limit := range p.Options.Limits {
			proc, err := p.ProcessFile(ctx, file, result.Proposed, limit)
			if err != nil {
				return summary, err
			}
			summary.Outcomes[proc.Outcome]++
			if proc.MetricsPath == "" {
				logger.WithField("limit", limit).Warn("Skipping comparison, proposed metrics not saved")
				continue
			}
			proposed[limit] = proc.Metrics.Record()
		}
		proc, err := p.ProcessFile(ctx, file, result.Baseline, 0)
		if err != nil {
			return summary, err
		}
		summary.Outcomes[proc.Outcome]++
		summary.Files++
		if proc.MetricsPath == "" {
			logger.Warn("Skipping comparison, baseline metrics not saved")
			continue
		}
		summary.addRows(name, proc.Metrics.Record(), proposed)
	}
	return summary, nil
}

// Collect rebuilds the summary from metrics files already on disk.
func Collect(root string, files []string, limits []int) *Summary {
	summary := NewSummary(limits)
	for _, file := range files {
		if compareFile(summary, root, file) {
			summary.Files++
		}
	}
	return summary
}

func compareFile(summary *Summary, root, file string) bool {
	logger := logging.GetLogger().WithField("file", file)
	baseline, err := result.LoadMetrics(file, result.Baseline, 0)
	if err != nil {
		logger.WithError(err).Warn("Skipping comparison, baseline metrics unavailable")
		return false
	}
	proposed := make(map[int]result.Record, len(summary.Limits))
	for _, limit := range summary.Limits {
		rec, err := result.LoadMetrics(file, result.Proposed, limit)
		if err != nil {
			logger.WithError(err).WithField("limit", limit).Warn("Skipping comparison, proposed metrics unavailable")
			continue
		}
		proposed[limit] = rec
	}
	return summary.addRows(corpus.Rel(root, file), baseline, proposed)
}

// addRows compares each proposed record against baseline in the table of its
// limit and reports whether any row was added.
func (s *Summary) addRows(name string, baseline result.Record, proposed map[int]result.Record) bool {
	added := false
	for _, limit := range s.Limits {
		rec, ok := proposed[limit]
		if !ok {
			continue
		}
		s.Tables[limit].Add(compare.Compare(rec, baseline, name))
		added = true
	}
	return added
}
