// Package storeclient is the HTTP collaborator client for the
// dashboard store: recording trades and reading/writing the
// algorithm/position/snapshot data model it owns. The store itself is
// out of scope for this module (spec.md §1); this package is only the
// caller-side contract against it.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"paperrunner/internal/logging"
)

// Client talks to the dashboard store's REST API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	log     *logging.Logger
}

// NewClient constructs a Client. apiKey is sent as a bearer token if
// non-empty; the store's own auth scheme is out of this module's scope.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		log:     logging.For("store-client"),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// Trade is one row posted to /api/trades.
type Trade struct {
	ID            string  `json:"id,omitempty"`
	AlgorithmID   string  `json:"algorithm_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	OrderType     string  `json:"order_type"`
	Status        string  `json:"status"`
	AlpacaOrderID string  `json:"alpaca_order_id"`
	Notes         string  `json:"notes"`
	FilledPrice   float64 `json:"filled_price"`
	FilledQty     float64 `json:"filled_qty"`
}

// NewTrade stamps a client-side ID so the record survives a transient
// store outage and is replayed by storequeue without collisions.
func NewTrade(algorithmID, symbol, side string, quantity float64, orderID, status, notes string, filledPrice, filledQty float64) Trade {
	return Trade{
		ID:            uuid.NewString(),
		AlgorithmID:   algorithmID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		OrderType:     "market",
		Status:        status,
		AlpacaOrderID: orderID,
		Notes:         notes,
		FilledPrice:   filledPrice,
		FilledQty:     filledQty,
	}
}

// RecordTrade posts a trade to the dashboard store. A non-2xx status
// or transport failure returns an error so the caller (storequeue) can
// retry later; this is the "transient remote" error class of spec.md §7.
//
// Deliberately exported as a plain RPC rather than folding the queue
// in here: storequeue imports this package for Trade/Client, so the
// reverse dependency would be circular. Callers that want at-least-
// once delivery wrap this with storequeue.Queue.Enqueue on failure.
func (c *Client) RecordTrade(ctx context.Context, trade Trade) error {
	body, status, err := c.doRequest(ctx, http.MethodPost, "/api/trades", trade)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("record trade: store returned %d: %s", status, string(body))
	}
	return nil
}

// Algorithm is the store's algorithm row, as read by the scheduled
// engine to decide what to evaluate.
type Algorithm struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	StrategyType string          `json:"strategy_type"`
	Symbols      []string        `json:"symbols"`
	Config       json.RawMessage `json:"config"`
	Enabled      bool            `json:"enabled"`
	Cash         float64         `json:"cash"`
}

// ListEnabledAlgorithms fetches all enabled algorithms.
func (c *Client) ListEnabledAlgorithms(ctx context.Context) ([]Algorithm, error) {
	body, status, err := c.doRequest(ctx, http.MethodGet, "/api/algorithms", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list algorithms: store returned %d", status)
	}
	var raw struct {
		Algorithms []Algorithm `json:"algorithms"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse algorithms response: %w", err)
	}
	enabled := raw.Algorithms[:0]
	for _, a := range raw.Algorithms {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled, nil
}

// Position is the store's per-algorithm-per-symbol position row.
type Position struct {
	AlgorithmID   string  `json:"algorithm_id"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// GetPosition fetches the current position for an algorithm/symbol
// pair, or nil if none exists.
func (c *Client) GetPosition(ctx context.Context, algorithmID, symbol string) (*Position, error) {
	body, status, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/algorithms/%s/positions", algorithmID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get positions: store returned %d", status)
	}
	var raw struct {
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse positions response: %w", err)
	}
	for _, p := range raw.Positions {
		if p.Symbol == symbol {
			return &p, nil
		}
	}
	return nil, nil
}

// UpsertPosition writes the position row after a BUY/SELL commits.
func (c *Client) UpsertPosition(ctx context.Context, pos Position) error {
	_, status, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/algorithms/%s/positions/%s", pos.AlgorithmID, pos.Symbol), pos)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert position: store returned %d", status)
	}
	return nil
}

// UpdateAlgorithmCash persists the algorithm's cash ledger.
func (c *Client) UpdateAlgorithmCash(ctx context.Context, algorithmID string, cash float64) error {
	_, status, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/algorithms/%s", algorithmID), map[string]float64{"cash": cash})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("update algorithm cash: store returned %d", status)
	}
	return nil
}

// Snapshot is one equity/position-value point-in-time row.
type Snapshot struct {
	ID           string  `json:"id,omitempty"`
	AlgorithmID  string  `json:"algorithm_id"`
	SnapshotDate string  `json:"snapshot_date"`
	Equity       float64 `json:"equity"`
	Cash         float64 `json:"cash"`
	BuyingPower  float64 `json:"buying_power"`
	DailyPnL     float64 `json:"daily_pnl"`
	TotalPnL     float64 `json:"total_pnl"`
	Trigger      string  `json:"trigger"`
}

// CreateSnapshot posts a new equity snapshot for an algorithm.
func (c *Client) CreateSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	_, status, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/algorithms/%s/snapshots", snap.AlgorithmID), snap)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create snapshot: store returned %d", status)
	}
	return nil
}

// ListSnapshots fetches all snapshots for an algorithm, ascending by
// date, for daily_pnl computation and performance analytics.
func (c *Client) ListSnapshots(ctx context.Context, algorithmID string) ([]Snapshot, error) {
	body, status, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/algorithms/%s/snapshots", algorithmID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list snapshots: store returned %d", status)
	}
	var raw struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse snapshots response: %w", err)
	}
	return raw.Snapshots, nil
}
