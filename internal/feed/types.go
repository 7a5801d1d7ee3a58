package feed

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrTimeout          = errors.New("operation timeout")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrSubClosed        = errors.New("subscription closed")
	ErrListenerAttached = errors.New("listener already attached")
	ErrNoListener       = errors.New("no listener attached")
	ErrSymbolNotFound   = errors.New("symbol not subscribed")
	ErrTooManySubs      = errors.New("subscription limit reached")
)

// TimestampedMessage wraps a raw frame with its local receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the socket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command is a feed command sent to the server.
type Command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Events  []string `json:"events"`
	Symbols []string `json:"symbols"`
}

// UnsubscribeParams are parameters for an unsubscribe command.
type UnsubscribeParams struct {
	SIDs []int64 `json:"sids"`
}

// Response is a command response from the server.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "subscribed", "unsubscribed", "error", "ok"
	Msg  json.RawMessage `json:"msg"`
}

// SubscribedMsg is the message content for a "subscribed" response.
type SubscribedMsg struct {
	SID    int64  `json:"sid"`
	Symbol string `json:"symbol"`
}

// UnsubscribedMsg is the message content for an "unsubscribed" response.
type UnsubscribedMsg struct {
	SIDs []int64 `json:"sids"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuoteWire is the wire format for quote data frames.
type QuoteWire struct {
	Type string `json:"type"`
	SID  int64  `json:"sid"`
	Msg  struct {
		Symbol          string  `json:"symbol"`
		Sequence        int64   `json:"sequence"`
		BidTime         int64   `json:"bid_time"` // ms since epoch
		BidExchangeCode string  `json:"bid_exchange_code"`
		BidPrice        float64 `json:"bid_price"`
		BidSize         float64 `json:"bid_size"`
		AskTime         int64   `json:"ask_time"` // ms since epoch
		AskExchangeCode string  `json:"ask_exchange_code"`
		AskPrice        float64 `json:"ask_price"`
		AskSize         float64 `json:"ask_size"`
		Scope           string  `json:"scope"`
	} `json:"msg"`
}

// ClientConfig configures a feed socket client.
type ClientConfig struct {
	URL          string        // Feed WebSocket URL (e.g., ws://localhost:7300/feed)
	Token        string        // Optional bearer token
	SessionID    string        // Session identity sent as X-Session-ID
	PingInterval time.Duration // Keepalive ping cadence
	PingTimeout  time.Duration // Max time without ping before considering the socket stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ConnConfig configures a feed session.
type ConnConfig struct {
	URL               string        // Feed WebSocket URL
	Token             string        // Optional bearer token
	SubscribeTimeout  time.Duration // Timeout for subscribe/unsubscribe commands
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	PingInterval      time.Duration // Keepalive ping cadence
	PingTimeout       time.Duration // Socket staleness threshold
	WriteTimeout      time.Duration // Socket write deadline
	FrameBufferSize   int           // Inbound frame buffer per socket
	QueueSize         int           // Initial per-subscription event queue capacity
	MaxSubscriptions  int           // Cap on concurrently open subscriptions
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SubscribeTimeout:  10 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		FrameBufferSize:   1000,
		QueueSize:         256,
		MaxSubscriptions:  5,
	}
}
