package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchTradeMessage(t *testing.T) {
	c := NewClient("k", "s", "wss://example.invalid")
	var got Trade
	c.dispatch([]byte(`[{"T":"t","S":"AAPL","p":150.25,"s":100,"t":1700000000000000000}]`), Handlers{
		OnTrade: func(tr Trade) { got = tr },
	})
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 150.25, got.Price)
	assert.Equal(t, 100.0, got.Size)
}

func TestDispatchBarMessage(t *testing.T) {
	c := NewClient("k", "s", "wss://example.invalid")
	var got Bar
	c.dispatch([]byte(`[{"T":"b","S":"MSFT","o":1,"h":2,"l":0.5,"c":1.5,"v":1000,"t":1700000000000000000}]`), Handlers{
		OnBar: func(b Bar) { got = b },
	})
	assert.Equal(t, "MSFT", got.Symbol)
	assert.Equal(t, 1.5, got.Close)
	assert.Equal(t, 1000.0, got.Volume)
}

func TestDispatchIgnoresUnknownMessageType(t *testing.T) {
	c := NewClient("k", "s", "wss://example.invalid")
	called := false
	c.dispatch([]byte(`[{"T":"x","S":"AAPL"}]`), Handlers{
		OnTrade: func(Trade) { called = true },
		OnBar:   func(Bar) { called = true },
	})
	assert.False(t, called)
}
