package yahoo

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-pulse/src/broadcast"
	"stock-pulse/src/interfaces"
	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

const chartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s"

// -----------------------------------------------------------------------------

// YahooFinanceSource fetches current quotes from the Yahoo Finance chart API.
type YahooFinanceSource struct {
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(netMgr interfaces.INetworkManager, log *logger.Logger) *YahooFinanceSource {
	return &YahooFinanceSource{
		Network: netMgr,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return "yahoo-finance"
}

// -----------------------------------------------------------------------------

// YahooChartResponse is the subset of the chart payload we consume.
type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Volume []*float64 `json:"volume"` // Pointers to handle null
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

// GetCurrentPrice fetches the latest quote for one symbol.
func (s *YahooFinanceSource) GetCurrentPrice(ctx context.Context, symbol string) (models.MPriceUpdate, error) {
	params := map[string]string{
		"interval":       "1m",
		"range":          "1d",
		"includePrePost": "false",
	}

	respBytes, err := s.Network.Get(ctx, fmt.Sprintf(chartURL, symbol), params)
	if err != nil {
		return models.MPriceUpdate{}, &broadcast.ProviderError{Provider: s.Name(), Symbol: symbol, Cause: err}
	}

	update, err := s.parseChartResponse(symbol, respBytes)
	if err != nil {
		return models.MPriceUpdate{}, &broadcast.ProviderError{Provider: s.Name(), Symbol: symbol, Cause: err}
	}
	return update, nil
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) parseChartResponse(symbol string, data []byte) (models.MPriceUpdate, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.MPriceUpdate{}, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if resp.Chart.Error != nil {
		return models.MPriceUpdate{}, fmt.Errorf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return models.MPriceUpdate{}, fmt.Errorf("no result in response for %s", symbol)
	}

	result := resp.Chart.Result[0]
	meta := result.Meta

	if meta.RegularMarketPrice == 0 && meta.ChartPreviousClose == 0 {
		return models.MPriceUpdate{}, fmt.Errorf("empty quote in response for %s", symbol)
	}

	change := meta.RegularMarketPrice - meta.ChartPreviousClose
	changePct := 0.0
	if meta.ChartPreviousClose != 0 {
		changePct = change / meta.ChartPreviousClose * 100
	}

	// Last non-null volume point of the session, if present.
	volume := 0.0
	if len(result.Indicators.Quote) > 0 {
		for _, v := range result.Indicators.Quote[0].Volume {
			if v != nil {
				volume = *v
			}
		}
	}

	timestamp := meta.RegularMarketTime
	if timestamp == 0 && len(result.Timestamp) > 0 {
		timestamp = result.Timestamp[len(result.Timestamp)-1]
	}

	return models.MPriceUpdate{
		Symbol:        symbol,
		Price:         meta.RegularMarketPrice,
		Change:        change,
		ChangePercent: changePct,
		Volume:        volume,
		PreviousClose: meta.ChartPreviousClose,
		Timestamp:     timestamp,
	}, nil
}
