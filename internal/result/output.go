package result

import (
	"fmt"
	"strings"

	"github.com/signalnine/expandbench/internal/invoker"
)

const (
	emptyStdout = "(empty - Spectector likely timed out or had an error)"
	emptyStderr = "(empty)"
)

// FormatReport renders the analyzer's captured output in the layout kept
// next to each input. Stdout and stderr are written exactly as captured. A
// timed out run has no return code.
func FormatReport(res *invoker.Result) string {
	var b strings.Builder
	if res.Stdout != "" {
		fmt.Fprintf(&b, "Stdout:\n%s", res.Stdout)
	} else {
		fmt.Fprintf(&b, "Stdout: %s\n", emptyStdout)
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "\nStderr:\n%s", res.Stderr)
	} else {
		fmt.Fprintf(&b, "\nStderr: %s\n", emptyStderr)
	}
	code := "None"
	if !res.TimedOut {
		code = fmt.Sprint(res.ReturnCode)
	}
	fmt.Fprintf(&b, "\nReturn Code: %s\n", code)
	fmt.Fprintf(&b, "Execution Time: %s seconds\n", FormatFloat(res.Elapsed.Seconds()))
	fmt.Fprintf(&b, "Timeout: %s\n", FormatBool(res.TimedOut))
	return b.String()
}

func WriteReport(path string, res *invoker.Result) error {
	return AtomicWrite(path, []byte(FormatReport(res)))
}
