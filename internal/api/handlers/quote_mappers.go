// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/marketbots/marketcore/internal/models"
)

// QuoteData is the full quote response for one instrument
type QuoteData struct {
	InstrumentToken    uint32             `json:"instrument_token"`
	LastPrice          float64            `json:"last_price"`
	LastTradedQuantity uint32             `json:"last_traded_quantity"`
	AverageTradePrice  float64            `json:"average_price"`
	VolumeTraded       uint32             `json:"volume"`
	LastTradeTime      string             `json:"last_trade_time"`
	TotalBuyQuantity   uint32             `json:"total_buy_quantity"`
	TotalSellQuantity  uint32             `json:"total_sell_quantity"`
	OI                 uint32             `json:"oi"`
	OIDayHigh          uint32             `json:"oi_day_high"`
	OIDayLow           uint32             `json:"oi_day_low"`
	OHLC               models.OHLC        `json:"ohlc"`
	Depth              models.MarketDepth `json:"depth"`
	UpdatedKinds       string             `json:"updated_kinds"`
	UpdatedAt          string             `json:"updated_at"`
}

// OHLCData is the OHLC response for one instrument
type OHLCData struct {
	InstrumentToken   uint32      `json:"instrument_token"`
	LastPrice         float64     `json:"last_price"`
	VolumeTraded      uint32      `json:"volume"`
	AverageTradePrice float64     `json:"average_price"`
	LastTradeTime     string      `json:"last_trade_time"`
	OHLC              models.OHLC `json:"ohlc"`
	UpdatedAt         string      `json:"updated_at"`
}

// LTPData is the LTP response for one instrument
type LTPData struct {
	InstrumentToken uint32  `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	UpdatedAt       string  `json:"updated_at"`
}

func mapStateToQuoteData(state models.MarketState) interface{} {
	return QuoteData{
		InstrumentToken:    state.Token,
		LastPrice:          state.LastPrice,
		LastTradedQuantity: state.LastTradedQuantity,
		AverageTradePrice:  state.AverageTradePrice,
		VolumeTraded:       state.VolumeTraded,
		LastTradeTime:      state.LastTradeTime.Format("2006-01-02 15:04:05"),
		TotalBuyQuantity:   state.TotalBuyQuantity,
		TotalSellQuantity:  state.TotalSellQuantity,
		OI:                 state.OI,
		OIDayHigh:          state.OIDayHigh,
		OIDayLow:           state.OIDayLow,
		OHLC:               state.OHLC,
		Depth:              state.Depth,
		UpdatedKinds:       state.UpdatedKinds.String(),
		UpdatedAt:          state.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func mapStateToOHLCData(state models.MarketState) interface{} {
	return OHLCData{
		InstrumentToken:   state.Token,
		LastPrice:         state.LastPrice,
		VolumeTraded:      state.VolumeTraded,
		AverageTradePrice: state.AverageTradePrice,
		LastTradeTime:     state.LastTradeTime.Format("2006-01-02 15:04:05"),
		OHLC:              state.OHLC,
		UpdatedAt:         state.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func mapStateToLTPData(state models.MarketState) interface{} {
	return LTPData{
		InstrumentToken: state.Token,
		LastPrice:       state.LastPrice,
		UpdatedAt:       state.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
