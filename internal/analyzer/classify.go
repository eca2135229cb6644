package analyzer

import "strings"

// SafeSentinel is the last line spectector prints when it finds no leak.
const SafeSentinel = "[program is safe]"

// Verdict is the analyzer's judgement. Successful means a verdict was
// produced at all, not that the program is leak-free.
type Verdict struct {
	Leak       bool
	Successful bool
}

// Classify reads the verdict from analyzer stdout: safe when the last
// non-empty line is exactly SafeSentinel, a leak otherwise.
func Classify(stdout string) Verdict {
	return Verdict{Leak: lastLine(stdout) != SafeSentinel, Successful: true}
}

func lastLine(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], " \t\r\n\v\f"); line != "" {
			return line
		}
	}
	return ""
}
