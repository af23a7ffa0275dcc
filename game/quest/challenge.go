package quest

import (
	"context"
	"fmt"
	"strings"

	"github.com/wricardo/codequest/game/sandbox"
)

// Evaluator executes challenge code and validator scripts.
type Evaluator interface {
	Run(ctx context.Context, source string) (sandbox.Result, error)
	Validate(ctx context.Context, script, output, source string) (bool, error)
}

// SubmitResult is the outcome of a challenge submission.
type SubmitResult struct {
	Passed bool   `json:"passed"`
	Output string `json:"output"`
	Reason string `json:"reason,omitempty"`
	State  State  `json:"state"`
}

// check evaluates the static clauses of a validation predicate. It returns
// an empty reason when every clause holds.
func (v Validation) check(output, source string) string {
	if v.OutputEquals != "" && strings.TrimSpace(output) != strings.TrimSpace(v.OutputEquals) {
		return fmt.Sprintf("expected output %q", strings.TrimSpace(v.OutputEquals))
	}
	for _, want := range v.OutputContains {
		if !strings.Contains(output, want) {
			return fmt.Sprintf("output should contain %q", want)
		}
	}
	for _, want := range v.SourceContains {
		if !strings.Contains(source, want) {
			return fmt.Sprintf("code should use %q", want)
		}
	}
	for _, banned := range v.SourceExcludes {
		if strings.Contains(source, banned) {
			return fmt.Sprintf("code should not use %q", banned)
		}
	}
	if v.MinOutputLines > 0 {
		if n := countLines(output); n < v.MinOutputLines {
			return fmt.Sprintf("expected at least %d lines of output, got %d", v.MinOutputLines, n)
		}
	}
	return ""
}

// countLines counts the non-blank lines of text.
func countLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
