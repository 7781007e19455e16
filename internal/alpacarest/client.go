// Package alpacarest is a REST client for the Alpaca Markets paper
// trading API, plus the safety-rail-guarded order manager that sits
// in front of it.
package alpacarest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client talks to the Alpaca trading and market-data REST APIs.
type Client struct {
	APIKey    string
	SecretKey string
	BaseURL   string // trading API, e.g. https://paper-api.alpaca.markets
	DataURL   string // market data API, e.g. https://data.alpaca.markets
	HTTP      *http.Client
}

// NewClient constructs a Client. baseURL is validated for the
// paper-only guard by OrderManager, not here.
func NewClient(apiKey, secretKey, baseURL, dataURL string) *Client {
	return &Client{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   baseURL,
		DataURL:   dataURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Clock is the brokerage market-clock response.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

func (c *Client) GetClock(ctx context.Context) (*Clock, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.BaseURL+"/v2/clock", nil)
	if err != nil {
		return nil, err
	}
	var clock Clock
	if err := json.Unmarshal(resp, &clock); err != nil {
		return nil, fmt.Errorf("failed to parse clock response: %w", err)
	}
	return &clock, nil
}

// Account is the subset of /v2/account fields this system uses.
type Account struct {
	Equity      float64
	BuyingPower float64
	Cash        float64
	Status      string
}

func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.BaseURL+"/v2/account", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Equity      string `json:"equity"`
		BuyingPower string `json:"buying_power"`
		Cash        string `json:"cash"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}
	account := &Account{Status: raw.Status}
	account.Equity, _ = strconv.ParseFloat(raw.Equity, 64)
	account.BuyingPower, _ = strconv.ParseFloat(raw.BuyingPower, 64)
	account.Cash, _ = strconv.ParseFloat(raw.Cash, 64)
	return account, nil
}

// Position is a brokerage-reported open position.
type Position struct {
	Symbol       string
	Qty          float64
	MarketValue  float64
	AvgEntryPrice float64
}

func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.BaseURL+"/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol        string `json:"symbol"`
		Qty           string `json:"qty"`
		MarketValue   string `json:"market_value"`
		AvgEntryPrice string `json:"avg_entry_price"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := Position{Symbol: p.Symbol}
		pos.Qty, _ = strconv.ParseFloat(p.Qty, 64)
		pos.MarketValue, _ = strconv.ParseFloat(p.MarketValue, 64)
		pos.AvgEntryPrice, _ = strconv.ParseFloat(p.AvgEntryPrice, 64)
		positions = append(positions, pos)
	}
	return positions, nil
}

// DailyBar is one OHLCV daily bar.
type DailyBar struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

func (c *Client) GetBars(ctx context.Context, symbol string, limit int) ([]DailyBar, error) {
	url := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=1Day&limit=%d&feed=iex", c.DataURL, symbol, limit)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Bars []struct {
			O float64   `json:"o"`
			H float64   `json:"h"`
			L float64   `json:"l"`
			C float64   `json:"c"`
			V float64   `json:"v"`
			T time.Time `json:"t"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bars response: %w", err)
	}
	bars := make([]DailyBar, 0, len(raw.Bars))
	for _, b := range raw.Bars {
		bars = append(bars, DailyBar{Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V, Timestamp: b.T})
	}
	return bars, nil
}

// GetLatestTrade is the fallback data source when GetBars returns no
// bars (market closed, no recent prints).
func (c *Client) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", c.DataURL, symbol)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	var raw struct {
		Trade struct {
			P float64 `json:"p"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse latest trade response: %w", err)
	}
	if raw.Trade.P == 0 {
		return 0, fmt.Errorf("no latest trade available for %s", symbol)
	}
	return raw.Trade.P, nil
}

// OrderRequest is the POST /v2/orders body. Exactly one of Notional or
// Qty is set: the streaming OrderManager sends a BUY as a notional
// dollar amount and a SELL as a quantity; the scheduled engine sends a
// quantity for both sides.
type OrderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Notional    string `json:"notional,omitempty"`
	Qty         string `json:"qty,omitempty"`
}

// OrderResult is the subset of the broker's order response this
// system reads back.
type OrderResult struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice string  `json:"filled_avg_price"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
}

// FilledQuantity parses FilledQty, returning 0 if absent or invalid.
func (o *OrderResult) FilledQuantity() float64 {
	v, _ := strconv.ParseFloat(o.FilledQty, 64)
	return v
}

// FilledPrice parses FilledAvgPrice, returning (0, false) if absent.
func (o *OrderResult) FilledPrice() (float64, bool) {
	if o.FilledAvgPrice == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(o.FilledAvgPrice, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/v2/orders", req)
	if err != nil {
		return nil, err
	}
	var result OrderResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return &result, nil
}
