package xray

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// step is one upstream call of a multi-step operation. Read-only steps change
// nothing upstream and are never reported as applied.
type step struct {
	name     string
	readOnly bool
	run      func(ctx context.Context) error
}

// runSteps executes steps in order and stops at the first failure. Writes
// that already succeeded stay committed upstream; the returned *Error names
// the failed step and lists the committed writes.
func runSteps(ctx context.Context, op string, steps []step) error {
	for i, s := range steps {
		err := s.run(ctx)
		if err == nil {
			continue
		}

		var xe *Error
		if !errors.As(Normalize(err), &xe) {
			return err
		}
		if len(steps) == 1 {
			return xe
		}
		completed := make([]string, 0, i)
		for _, done := range steps[:i] {
			if !done.readOnly {
				completed = append(completed, done.name)
			}
		}

		out := *xe
		out.Step = s.name
		out.Completed = completed
		out.Message = fmt.Sprintf("%s: step %d/%d (%s) failed: %s", op, i+1, len(steps), s.name, xe.Message)
		if len(completed) > 0 {
			out.Message += fmt.Sprintf(" (already applied, not rolled back: %s)", strings.Join(completed, ", "))
		}

		slog.Warn("multi-step operation failed",
			"operation", op,
			"step", s.name,
			"completed", completed,
			"code", string(xe.Code),
		)
		return &out
	}
	return nil
}
