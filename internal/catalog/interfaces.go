package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("challenge not found")

type Catalog interface {
	List(ctx context.Context) ([]Challenge, error)
	Get(ctx context.Context, id string) (Challenge, error)
}
