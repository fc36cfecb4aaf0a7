package hints

import (
	"context"

	"codedojo/internal/backend"
)

// Store is device-local key/value storage for hint progress.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Generator interface {
	GenerateHints(ctx context.Context, in backend.HintRequest) ([]backend.HintCandidate, error)
}
