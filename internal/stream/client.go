// Package stream is the Alpaca market-data WebSocket client: connect,
// authenticate, subscribe, and dispatch trade/bar messages to callbacks.
// It does not reconnect on its own; the caller decides whether a closed
// connection is fatal.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"paperrunner/internal/logging"
)

const idleTimeout = 30 * time.Second

// Trade is a single real-time trade print.
type Trade struct {
	Symbol    string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// Bar is a real-time minute (or finer) aggregate bar.
type Bar struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Quote is a real-time NBBO quote update ("q" frames, websocket.py's
// on_message quote branch). No strategy in this module consumes
// quotes; the type exists so dispatch can parse and route them like
// any other frame instead of silently dropping a documented message
// kind.
type Quote struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	Timestamp time.Time
}

// Handlers are the callbacks dispatched as messages arrive. A nil
// handler means that message type is ignored.
type Handlers struct {
	OnTrade func(Trade)
	OnBar   func(Bar)
	OnQuote func(Quote)
}

// Client is a connected Alpaca market-data WebSocket session.
type Client struct {
	apiKey    string
	secretKey string
	url       string
	log       *logging.Logger

	conn *websocket.Conn
}

// NewClient constructs a Client. Connect must be called before Run.
func NewClient(apiKey, secretKey, url string) *Client {
	return &Client{
		apiKey:    apiKey,
		secretKey: secretKey,
		url:       url,
		log:       logging.For("stream-client"),
	}
}

type rawEnvelope struct {
	T string `json:"T"`
}

// Connect dials the WebSocket, reads the welcome message, and
// authenticates. It returns an error if authentication is rejected.
func (c *Client) Connect() error {
	c.log.Infof("connecting to %s", c.url)
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.conn = conn

	// Welcome message.
	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return fmt.Errorf("read welcome message: %w", err)
	}

	auth := map[string]string{
		"action": "auth",
		"key":    c.apiKey,
		"secret": c.secretKey,
	}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("send auth: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("read auth response: %w", err)
	}
	var authResp []struct {
		T   string `json:"T"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(msg, &authResp); err != nil {
		conn.Close()
		return fmt.Errorf("parse auth response: %w", err)
	}
	if len(authResp) == 0 || authResp[0].Msg != "authenticated" {
		conn.Close()
		return fmt.Errorf("authentication rejected: %s", string(msg))
	}
	c.log.Infof("authenticated")
	return nil
}

// Subscribe subscribes to trade and bar updates for the given symbols.
func (c *Client) Subscribe(symbols []string) error {
	sub := map[string]interface{}{
		"action": "subscribe",
		"trades": symbols,
		"bars":   symbols,
	}
	if err := c.conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read subscribe response: %w", err)
	}
	c.log.Infof("subscription response: %s", string(msg))
	return nil
}

// Run reads and dispatches messages until the connection closes or an
// unrecoverable read error occurs. It sends a ping after 30s of
// silence rather than treating idleness as an error. Run does not
// reconnect; the caller decides what to do when it returns.
func (c *Client) Run(handlers Handlers) error {
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err) {
				return fmt.Errorf("connection closed: %w", err)
			}
			if isTimeout(err) {
				if pingErr := c.conn.WriteMessage(websocket.PingMessage, nil); pingErr != nil {
					return fmt.Errorf("ping failed: %w", pingErr)
				}
				c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
				continue
			}
			return fmt.Errorf("read message: %w", err)
		}
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		c.dispatch(msg, handlers)
	}
}

func (c *Client) dispatch(msg []byte, handlers Handlers) {
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		c.log.Warnf("failed to parse message batch: %v", err)
		return
	}
	for _, item := range items {
		var env rawEnvelope
		if err := json.Unmarshal(item, &env); err != nil {
			continue
		}
		switch env.T {
		case "t":
			if handlers.OnTrade == nil {
				continue
			}
			var raw struct {
				Type string `json:"T"`
				S string  `json:"S"`
				P float64 `json:"p"`
				S_ float64 `json:"s"`
				T  int64   `json:"t"`
			}
			if err := json.Unmarshal(item, &raw); err != nil {
				c.log.Warnf("failed to parse trade message: %v", err)
				continue
			}
			handlers.OnTrade(Trade{Symbol: raw.S, Price: raw.P, Size: raw.S_, Timestamp: time.Unix(0, raw.T)})
		case "b":
			if handlers.OnBar == nil {
				continue
			}
			var raw struct {
				Type string `json:"T"`
				S string  `json:"S"`
				O float64 `json:"o"`
				H float64 `json:"h"`
				L float64 `json:"l"`
				C float64 `json:"c"`
				V float64 `json:"v"`
				T int64   `json:"t"`
			}
			if err := json.Unmarshal(item, &raw); err != nil {
				c.log.Warnf("failed to parse bar message: %v", err)
				continue
			}
			handlers.OnBar(Bar{Symbol: raw.S, Open: raw.O, High: raw.H, Low: raw.L, Close: raw.C, Volume: raw.V, Timestamp: time.Unix(0, raw.T)})
		case "q":
			if handlers.OnQuote == nil {
				continue
			}
			var raw struct {
				Type string `json:"T"`
				S  string  `json:"S"`
				BP float64 `json:"bp"`
				BS float64 `json:"bs"`
				AP float64 `json:"ap"`
				AS float64 `json:"as"`
				T  int64   `json:"t"`
			}
			if err := json.Unmarshal(item, &raw); err != nil {
				c.log.Warnf("failed to parse quote message: %v", err)
				continue
			}
			handlers.OnQuote(Quote{Symbol: raw.S, BidPrice: raw.BP, BidSize: raw.BS, AskPrice: raw.AP, AskSize: raw.AS, Timestamp: time.Unix(0, raw.T)})
		case "success", "subscription":
			c.log.Debugf("stream message: %s", string(item))
		case "error":
			c.log.Warnf("stream error: %s", string(item))
		}
	}
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
