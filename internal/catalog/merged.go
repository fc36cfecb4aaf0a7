package catalog

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Merged lists challenges from several sources concurrently. Earlier sources
// win when two of them define the same id.
type Merged struct {
	sources []Catalog
}

func NewMerged(sources ...Catalog) *Merged {
	out := &Merged{}
	for _, s := range sources {
		if s != nil {
			out.sources = append(out.sources, s)
		}
	}
	return out
}

func (m *Merged) List(ctx context.Context) ([]Challenge, error) {
	lists := make([][]Challenge, len(m.sources))
	errs := make([]error, len(m.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		g.Go(func() error {
			items, err := src.List(gctx)
			lists[i] = items
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var out []Challenge
	seen := map[string]bool{}
	failed := 0
	for i, items := range lists {
		if errs[i] != nil {
			failed++
			continue
		}
		for _, ch := range items {
			if seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			out = append(out, ch)
		}
	}
	if len(m.sources) > 0 && failed == len(m.sources) {
		return nil, fmt.Errorf("list challenges: %w", errors.Join(errs...))
	}
	return out, nil
}

func (m *Merged) Get(ctx context.Context, id string) (Challenge, error) {
	var errs []error
	for _, src := range m.sources {
		ch, err := src.Get(ctx, id)
		if err == nil {
			return ch, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Challenge{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Challenge{}, errors.Join(errs...)
}
