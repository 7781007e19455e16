package schedengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrunner/internal/alpacarest"
	"paperrunner/internal/storeclient"
)

// fakeStore is a minimal in-memory stand-in for the dashboard store,
// exercising the same HTTP contract as storeclient.Client against a
// real httptest server, so schedengine's cash/position bookkeeping
// runs through the full client path.
type fakeStore struct {
	algorithm storeclient.Algorithm
	positions map[string]storeclient.Position
	snapshots []storeclient.Snapshot
}

func newFakeStoreServer(t *testing.T, algo storeclient.Algorithm) (*httptest.Server, *fakeStore) {
	t.Helper()
	fs := &fakeStore{algorithm: algo, positions: make(map[string]storeclient.Position)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/algorithms", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{"algorithms": []storeclient.Algorithm{fs.algorithm}})
		}
	})
	mux.HandleFunc("/api/algorithms/"+algo.ID, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			var body map[string]float64
			json.NewDecoder(r.Body).Decode(&body)
			fs.algorithm.Cash = body["cash"]
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/api/algorithms/"+algo.ID+"/positions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			var list []storeclient.Position
			for _, p := range fs.positions {
				list = append(list, p)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"positions": list})
		}
	})
	mux.HandleFunc("/api/algorithms/"+algo.ID+"/snapshots", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var snap storeclient.Snapshot
			json.NewDecoder(r.Body).Decode(&snap)
			fs.snapshots = append(fs.snapshots, snap)
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/api/trades", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	// position PUT uses a per-symbol subpath the generic positions handler above doesn't match exactly;
	// route it explicitly.
	mux.HandleFunc("/api/algorithms/"+algo.ID+"/positions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			var pos storeclient.Position
			json.NewDecoder(r.Body).Decode(&pos)
			if pos.Quantity <= 0 {
				delete(fs.positions, pos.Symbol)
			} else {
				fs.positions[pos.Symbol] = pos
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	return httptest.NewServer(mux), fs
}

func newBrokerOrderServer(t *testing.T, fillPrice string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(alpacarest.OrderResult{ID: "o1", Status: "filled", FilledAvgPrice: fillPrice})
	})
	mux.HandleFunc("/v2/stocks/AAPL/bars", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bars": []map[string]interface{}{{"c": 100.0}},
		})
	})
	return httptest.NewServer(mux)
}

func TestCashAccountingSeedBuyThenSell(t *testing.T) {
	algo := storeclient.Algorithm{ID: "algo1", Name: "test", Symbols: []string{"AAPL"}, Enabled: true, Cash: 1000}
	storeServer, fs := newFakeStoreServer(t, algo)
	defer storeServer.Close()

	brokerServer := newBrokerOrderServer(t, "100")
	defer brokerServer.Close()

	broker := alpacarest.NewClient("k", "s", brokerServer.URL, brokerServer.URL)
	store := storeclient.NewClient(storeServer.URL, "")
	e := New(broker, store, nil)

	ctx := context.Background()
	e.submitOrder(ctx, fs.algorithm, "AAPL", "buy", 5, "buy 5")

	require.NotNil(t, fs.positions["AAPL"])
	assert.Equal(t, 5.0, fs.positions["AAPL"].Quantity)
	assert.Equal(t, 100.0, fs.positions["AAPL"].AvgEntryPrice)
	assert.Equal(t, 500.0, fs.algorithm.Cash)

	sellBrokerServer := newBrokerOrderServer(t, "110")
	defer sellBrokerServer.Close()
	e.broker = alpacarest.NewClient("k", "s", sellBrokerServer.URL, sellBrokerServer.URL)

	e.submitOrder(ctx, fs.algorithm, "AAPL", "sell", 5, "sell 5")

	_, stillHeld := fs.positions["AAPL"]
	assert.False(t, stillHeld)
	assert.Equal(t, 1050.0, fs.algorithm.Cash)
}
