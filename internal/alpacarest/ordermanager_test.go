package alpacarest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OrderResult{ID: "o1", Status: "filled", FilledQty: "1", FilledAvgPrice: "100"})
	})
	return httptest.NewServer(mux)
}

func TestPaperOnlyGuardRejectsLiveURL(t *testing.T) {
	client := NewClient("k", "s", "https://api.alpaca.markets", "https://data.alpaca.markets")
	_, err := NewOrderManager(client, Config{PaperOnly: true, MaxOrdersPerMinute: 10, CooldownSeconds: 5, MaxPositionPct: 0.5})
	assert.Error(t, err)
}

func TestPaperOnlyGuardAllowsPaperURL(t *testing.T) {
	client := NewClient("k", "s", "https://paper-api.alpaca.markets", "https://data.alpaca.markets")
	om, err := NewOrderManager(client, Config{PaperOnly: true, MaxOrdersPerMinute: 10, CooldownSeconds: 5, MaxPositionPct: 0.5})
	require.NoError(t, err)
	require.NotNil(t, om)
}

func TestRateLimitRejectsThirdOrder(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := NewClient("k", "s", server.URL, server.URL)
	om, err := NewOrderManager(client, Config{PaperOnly: false, MaxOrdersPerMinute: 2, CooldownSeconds: 0, MaxPositionPct: 1.0})
	require.NoError(t, err)

	// pre-populate broker-reported positions so SELL has quantity to use
	om.positions = map[string]Position{
		"AAA": {Symbol: "AAA", Qty: 1},
		"BBB": {Symbol: "BBB", Qty: 1},
		"CCC": {Symbol: "CCC", Qty: 1},
	}

	ctx := context.Background()
	r1, err := om.Submit(ctx, SideSell, "AAA", 0)
	require.NoError(t, err)
	assert.NotNil(t, r1)

	r2, err := om.Submit(ctx, SideSell, "BBB", 0)
	require.NoError(t, err)
	assert.NotNil(t, r2)

	r3, err := om.Submit(ctx, SideSell, "CCC", 0)
	require.NoError(t, err)
	assert.Nil(t, r3)
}

func TestSellRejectedWithoutBrokerPosition(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := NewClient("k", "s", server.URL, server.URL)
	om, err := NewOrderManager(client, Config{MaxOrdersPerMinute: 10, CooldownSeconds: 0, MaxPositionPct: 1.0})
	require.NoError(t, err)

	result, err := om.Submit(context.Background(), SideSell, "AAA", 0)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestExposureCapRejectsOversizedBuy(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := NewClient("k", "s", server.URL, server.URL)
	om, err := NewOrderManager(client, Config{MaxOrdersPerMinute: 10, CooldownSeconds: 0, MaxPositionPct: 0.1})
	require.NoError(t, err)
	om.accountEquity = 1000

	result, err := om.Submit(context.Background(), SideBuy, "AAA", 500)
	require.NoError(t, err)
	assert.Nil(t, result)
}
