// Package models contains the models for the Marketcore API
package models

import "time"

// UpdateKind is a bit set recording which field groups an update carries.
type UpdateKind uint8

const (
	KindTrade UpdateKind = 1 << iota
	KindQuote
	KindDepth
	KindOI
)

// KindFull carries every field group.
const KindFull = KindTrade | KindQuote | KindDepth | KindOI

// Has reports whether k carries all bits of other.
func (k UpdateKind) Has(other UpdateKind) bool {
	return k&other == other
}

// String returns a pipe-joined name list for the set bits.
func (k UpdateKind) String() string {
	if k == 0 {
		return "none"
	}
	names := ""
	appendName := func(name string) {
		if names != "" {
			names += "|"
		}
		names += name
	}
	if k.Has(KindTrade) {
		appendName("trade")
	}
	if k.Has(KindQuote) {
		appendName("quote")
	}
	if k.Has(KindDepth) {
		appendName("depth")
	}
	if k.Has(KindOI) {
		appendName("oi")
	}
	return names
}

// OHLC holds the day open/high/low and previous close.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// DepthItem is a single order book level.
type DepthItem struct {
	Price    float64 `json:"price"`
	Quantity uint32  `json:"quantity"`
	Orders   uint32  `json:"orders"`
}

// MarketDepth holds up to 5 levels per side.
type MarketDepth struct {
	Buy  [5]DepthItem `json:"buy"`
	Sell [5]DepthItem `json:"sell"`
}

// TradeFields is the field group carried by a trade update.
type TradeFields struct {
	LastPrice          float64   `json:"last_price"`
	LastTradedQuantity uint32    `json:"last_traded_quantity"`
	AverageTradePrice  float64   `json:"average_price"`
	VolumeTraded       uint32    `json:"volume"`
	LastTradeTime      time.Time `json:"last_trade_time"`
}

// QuoteFields is the touchline field group: top of book plus day OHLC.
type QuoteFields struct {
	LastPrice       float64 `json:"last_price"`
	BestBidPrice    float64 `json:"best_bid_price"`
	BestBidQuantity uint32  `json:"best_bid_quantity"`
	BestAskPrice    float64 `json:"best_ask_price"`
	BestAskQuantity uint32  `json:"best_ask_quantity"`
	OHLC            OHLC    `json:"ohlc"`
}

// DepthFields is the field group carried by a depth update.
type DepthFields struct {
	Depth             MarketDepth `json:"depth"`
	TotalBuyQuantity  uint32      `json:"total_buy_quantity"`
	TotalSellQuantity uint32      `json:"total_sell_quantity"`
}

// OIFields is the open interest field group.
type OIFields struct {
	OI        uint32 `json:"oi"`
	OIDayHigh uint32 `json:"oi_day_high"`
	OIDayLow  uint32 `json:"oi_day_low"`
}

// Update is one decoded field-group update handed in by the parsing layer.
// Only the payloads named by Kind may be non-nil.
type Update struct {
	Token uint32       `json:"instrument_token"`
	Kind  UpdateKind   `json:"kind"`
	Trade *TradeFields `json:"trade,omitempty"`
	Quote *QuoteFields `json:"quote,omitempty"`
	Depth *DepthFields `json:"depth,omitempty"`
	OI    *OIFields    `json:"oi,omitempty"`
}

// MarketState is the full mutable per-token record held by the price store.
// A state that has never been updated is never handed to readers.
type MarketState struct {
	Token              uint32      `json:"instrument_token"`
	LastPrice          float64     `json:"last_price"`
	LastTradedQuantity uint32      `json:"last_traded_quantity"`
	AverageTradePrice  float64     `json:"average_price"`
	VolumeTraded       uint32      `json:"volume"`
	LastTradeTime      time.Time   `json:"last_trade_time"`
	OHLC               OHLC        `json:"ohlc"`
	BestBidPrice       float64     `json:"best_bid_price"`
	BestBidQuantity    uint32      `json:"best_bid_quantity"`
	BestAskPrice       float64     `json:"best_ask_price"`
	BestAskQuantity    uint32      `json:"best_ask_quantity"`
	TotalBuyQuantity   uint32      `json:"total_buy_quantity"`
	TotalSellQuantity  uint32      `json:"total_sell_quantity"`
	Depth              MarketDepth `json:"depth"`
	OI                 uint32      `json:"oi"`
	OIDayHigh          uint32      `json:"oi_day_high"`
	OIDayLow           uint32      `json:"oi_day_low"`
	UpdatedKinds       UpdateKind  `json:"updated_kinds"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// ChangeEvent is the value copy emitted after an update is applied. It
// carries only the field groups named by Kind; payload structs are copies
// and never alias live store state.
type ChangeEvent struct {
	Token     uint32       `json:"instrument_token"`
	Kind      UpdateKind   `json:"kind"`
	Seq       uint64       `json:"seq"`
	Trade     *TradeFields `json:"trade,omitempty"`
	Quote     *QuoteFields `json:"quote,omitempty"`
	Depth     *DepthFields `json:"depth,omitempty"`
	OI        *OIFields    `json:"oi,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Price returns the last price carried by the event and whether one was
// present (trade and quote groups carry prices, depth and OI do not).
func (e ChangeEvent) Price() (float64, bool) {
	if e.Trade != nil {
		return e.Trade.LastPrice, true
	}
	if e.Quote != nil {
		return e.Quote.LastPrice, true
	}
	return 0, false
}
