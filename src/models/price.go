package models

// -----------------------------------------------------------------------------

// MPriceUpdate represents one observed quote for a symbol.
// Immutable once constructed; produced only by the update poller.
type MPriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume"`
	PreviousClose float64 `json:"previous_close"`
	MarketStatus  string  `json:"market_status"`
	Timestamp     int64   `json:"timestamp"`
}
