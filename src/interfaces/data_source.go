package interfaces

import (
	"context"

	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------
// IStockDataProvider is the external market-data collaborator. Implementations
// may be rate limited or flaky upstream; the poller owns retry policy.
// -----------------------------------------------------------------------------

type IStockDataProvider interface {

	// Name returns the unique identifier of the provider
	Name() string

	// -----------------------------------------------------------------------------

	// GetCurrentPrice fetches the current quote for one symbol.
	// Failures are returned as *ProviderError values by convention.
	GetCurrentPrice(ctx context.Context, symbol string) (models.MPriceUpdate, error)
}
