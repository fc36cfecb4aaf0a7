package devtools

import (
	"context"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/session"
)

type Demo interface {
	Resolve(name string) Scenario
	SetState(ctx context.Context, cacheDir string, state string, rendered bool) error
	DemoResults(ch catalog.Challenge, pass bool) []grading.TestResult
	DemoHints(ch catalog.Challenge) []hints.Hint
	DemoSubmission(ch catalog.Challenge) session.SubmitOutcome
}

var _ Demo = (*Manager)(nil)
