package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Event Classification
// -----------------------------------------------------------------------------

// EventType is a bit mask of feed event kinds a subscription can carry.
type EventType uint32

const (
	EventQuote EventType = 1 << iota
	EventTrade
	EventOrder
	EventSummary
	EventProfile
)

// Has reports whether the mask includes t.
func (e EventType) Has(t EventType) bool {
	return e&t != 0
}

// String returns a pipe-joined list of event names in the mask.
func (e EventType) String() string {
	names := []string{}
	for _, entry := range []struct {
		bit  EventType
		name string
	}{
		{EventQuote, "Quote"},
		{EventTrade, "Trade"},
		{EventOrder, "Order"},
		{EventSummary, "Summary"},
		{EventProfile, "Profile"},
	} {
		if e.Has(entry.bit) {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Scope identifies the market depth level a quote aggregates over.
type Scope int

const (
	ScopeComposite Scope = iota
	ScopeRegional
	ScopeAggregate
	ScopeOrder
)

// String returns the display name for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeComposite:
		return "Composite"
	case ScopeRegional:
		return "Regional"
	case ScopeAggregate:
		return "Aggregate"
	case ScopeOrder:
		return "Order"
	}
	return ""
}

// ScopeFromWire maps a wire scope string to a Scope. Unknown values map to
// ScopeComposite, the feed's default aggregation level.
func ScopeFromWire(s string) Scope {
	switch s {
	case "regional":
		return ScopeRegional
	case "aggregate":
		return ScopeAggregate
	case "order":
		return ScopeOrder
	}
	return ScopeComposite
}

// Wire returns the wire string for the scope.
func (s Scope) Wire() string {
	switch s {
	case ScopeRegional:
		return "regional"
	case ScopeAggregate:
		return "aggregate"
	case ScopeOrder:
		return "order"
	}
	return "composite"
}

// Side identifies the aggressor side of an order event.
type Side int

const (
	SideUndefined Side = iota
	SideBuy
	SideSell
)

// String returns the display name for the side.
func (s Side) String() string {
	switch s {
	case SideUndefined:
		return "Undefined"
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	}
	return ""
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Quote is a decoded quote event: the best bid and ask for a symbol.
type Quote struct {
	Symbol   string // Feed symbol (e.g., "ETH/USD")
	Sequence int64  // Per-symbol sequence number assigned by the feed

	BidTime         int64   // Bid update time (ms since epoch)
	BidExchangeCode string  // Exchange the bid originates from
	BidPrice        float64 // Best bid price
	BidSize         float64 // Size at the best bid

	AskTime         int64   // Ask update time (ms since epoch)
	AskExchangeCode string  // Exchange the ask originates from
	AskPrice        float64 // Best ask price
	AskSize         float64 // Size at the best ask

	Scope      Scope     // Aggregation level
	ReceivedAt time.Time // Local timestamp when the frame arrived
}
