package interfaces

import "stock-pulse/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for price persistence. The broadcast core
// works without it; it only warms the price cache and keeps history.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SavePriceUpdates inserts a batch of observed price updates.
	SavePriceUpdates(updates []models.MPriceUpdate) error

	// -----------------------------------------------------------------------------

	// LoadLatestPrices returns the most recent persisted update per symbol.
	LoadLatestPrices() (map[string]models.MPriceUpdate, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
