package grading

import (
	"context"

	"codedojo/internal/catalog"
)

// Runner executes code against a single test case.
type Runner interface {
	RunCase(ctx context.Context, code string, tc catalog.TestCase) TestResult
}
