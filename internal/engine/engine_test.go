package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrunner/internal/alpacarest"
	"paperrunner/internal/strategy"
	"paperrunner/internal/stream"
	"paperrunner/internal/tickbuffer"
)

func newFilledOrderServer(t *testing.T, filledQty string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alpacarest.OrderResult{ID: "o1", Status: "filled", FilledQty: filledQty, FilledAvgPrice: "100"})
	})
	mux.HandleFunc("/v2/account", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"equity": "10000", "buying_power": "10000", "cash": "10000", "status": "ACTIVE"})
	})
	mux.HandleFunc("/v2/positions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{{"symbol": "AAPL", "qty": "5", "market_value": "500", "avg_entry_price": "100"}})
	})
	return httptest.NewServer(mux)
}

func TestSymbolStrategiesWiring(t *testing.T) {
	s1 := strategy.NewBuyAndHold(strategy.Config{Name: "bah1", Symbols: []string{"AAPL", "MSFT"}, Enabled: true})
	s2 := strategy.NewBuyAndHold(strategy.Config{Name: "bah2", Symbols: []string{"MSFT"}, Enabled: true})

	e := New(nil, nil, tickbuffer.New(60), []strategy.Strategy{s1, s2}, nil, nil, "algo1")
	assert.Len(t, e.symbolStrategies["AAPL"], 1)
	assert.Len(t, e.symbolStrategies["MSFT"], 2)
}

func TestHandleSignalBuyUpdatesPosition(t *testing.T) {
	server := newFilledOrderServer(t, "2")
	defer server.Close()

	client := alpacarest.NewClient("k", "s", server.URL, server.URL)
	om, err := alpacarest.NewOrderManager(client, alpacarest.Config{MaxOrdersPerMinute: 10, CooldownSeconds: 0, MaxPositionPct: 1.0})
	require.NoError(t, err)

	s := strategy.NewBuyAndHold(strategy.Config{Name: "bah", Symbols: []string{"AAPL"}, Enabled: true, CashAllocation: 1000, PositionSizePct: 0.1})
	e := New(nil, om, tickbuffer.New(60), []strategy.Strategy{s}, nil, nil, "algo1")

	sig := s.OnTick("AAPL", 100, strategy.Indicators{})
	require.NotNil(t, sig)
	e.handleSignal(sig, s)

	assert.Equal(t, 2.0, s.GetPosition("AAPL"))
}

func TestHandleSignalSellZeroesPosition(t *testing.T) {
	server := newFilledOrderServer(t, "1")
	defer server.Close()

	client := alpacarest.NewClient("k", "s", server.URL, server.URL)
	om, err := alpacarest.NewOrderManager(client, alpacarest.Config{MaxOrdersPerMinute: 10, CooldownSeconds: 0, MaxPositionPct: 1.0})
	require.NoError(t, err)

	s := strategy.NewMomentum(strategy.Config{
		Name: "mom", Symbols: []string{"AAPL"}, Enabled: true, CooldownSeconds: 0,
		Momentum: strategy.MomentumParams{ThresholdPct: 1, ExitThresholdPct: 1, LookbackSeconds: 5},
	})
	s.UpdatePosition("AAPL", 5)
	// the order manager sells the broker-reported quantity, so load it
	require.NoError(t, om.RefreshAccount(context.Background()))

	e := New(nil, om, tickbuffer.New(60), []strategy.Strategy{s}, nil, nil, "algo1")

	sig := s.OnTick("AAPL", 100, strategy.Indicators{MomentumPct: map[int]float64{5: -2.0}})
	require.NotNil(t, sig)
	e.handleSignal(sig, s)

	assert.Equal(t, 0.0, s.GetPosition("AAPL"))
}

func TestHandleTradeDispatchesToBoundStrategyOnly(t *testing.T) {
	appleOnly := strategy.NewBuyAndHold(strategy.Config{Name: "apple-only", Symbols: []string{"AAPL"}, Enabled: true})
	e := New(nil, nil, tickbuffer.New(60), []strategy.Strategy{appleOnly}, nil, nil, "algo1")

	// MSFT has no bound strategy; handleTrade must not panic on empty slice.
	e.handleTrade(stream.Trade{Symbol: "MSFT", Price: 50, Size: 1})
	assert.False(t, appleOnly.HasPosition("MSFT"))
}
