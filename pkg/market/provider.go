package market

import (
	"context"
	"errors"
)

// ErrPartial marks a Fetch that returned only part of the category. The
// observations returned alongside it are valid.
var ErrPartial = errors.New("market: partial result")

// Provider fetches the current observations for a whole category from an
// upstream market data source.
type Provider interface {
	// Fetch returns every observation the upstream currently publishes for
	// the category. A non-empty result may come with an error wrapping
	// ErrPartial when the upstream answered only in part.
	Fetch(ctx context.Context, category Category) ([]Observation, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, category Category) ([]Observation, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, category Category) ([]Observation, error) {
	return f(ctx, category)
}
