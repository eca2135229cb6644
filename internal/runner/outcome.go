package runner

import "github.com/signalnine/expandbench/internal/invoker"

// Outcome labels how a single (file, variant) run ended.
type Outcome string

const (
	Completed    Outcome = "completed"
	Leak         Outcome = "leak"
	Safe         Outcome = "safe"
	Timeout      Outcome = "timeout"
	Crashed      Outcome = "crashed"
	SpawnFailed  Outcome = "spawn_failed"
	ExpandFailed Outcome = "expand_failed"
	NoVerdict    Outcome = "no_verdict"
)

// Outcomes lists every label in reporting order.
var Outcomes = []Outcome{Safe, Leak, Timeout, Crashed, NoVerdict, ExpandFailed, SpawnFailed, Completed}

// OutcomeFromResult maps an analyzer result to its exit label. A completed
// run is refined into Leak, Safe or NoVerdict once its output is classified.
func OutcomeFromResult(res *invoker.Result) Outcome {
	if res.TimedOut {
		return Timeout
	}
	if res.ReturnCode != 0 {
		return Crashed
	}
	return Completed
}
