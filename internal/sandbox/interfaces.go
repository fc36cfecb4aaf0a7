package sandbox

import (
	"context"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
)

type Runner interface {
	Detect(ctx context.Context, forceInterpreter string) (EngineInfo, error)
	RunCase(ctx context.Context, code string, tc catalog.TestCase) grading.TestResult
}

var (
	_ Runner         = (*Manager)(nil)
	_ grading.Runner = (*Manager)(nil)
)
