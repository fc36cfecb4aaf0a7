package app

import (
	"context"

	"codedojo/internal/catalog"
	"codedojo/internal/hints"
	"codedojo/internal/session"
)

// Backend is everything the app asks of the challenge service.
// *backend.Client implements it.
type Backend interface {
	session.Backend
	hints.Generator
	catalog.Catalog
	Health(ctx context.Context) error
	BaseURL() string
}
