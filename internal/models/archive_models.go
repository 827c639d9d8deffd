// Package models contains the models for the Marketcore API
package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TickSnapshotsTableName is the name of the (unlogged) tick archive table
var TickSnapshotsTableName = "tick_snapshots"

// TickSnapshot is the per-token archive row, last-write-wins on token.
type TickSnapshot struct {
	InstrumentToken    uint32         `gorm:"primaryKey" json:"instrument_token"`
	Instrument         string         `gorm:"index" json:"instrument"`
	LastPrice          float64        `gorm:"type:decimal(12,2);column:last_price" json:"last_price"`
	LastTradedQuantity uint32         `gorm:"type:bigint;column:last_traded_quantity" json:"last_traded_quantity"`
	AverageTradePrice  float64        `gorm:"type:decimal(12,2);column:average_price" json:"average_price"`
	VolumeTraded       uint32         `gorm:"type:bigint;column:volume" json:"volume"`
	TotalBuyQuantity   uint32         `gorm:"type:bigint;column:total_buy_quantity" json:"total_buy_quantity"`
	TotalSellQuantity  uint32         `gorm:"type:bigint;column:total_sell_quantity" json:"total_sell_quantity"`
	OI                 uint32         `gorm:"type:bigint;column:oi" json:"oi"`
	OIDayHigh          uint32         `gorm:"type:bigint;column:oi_day_high" json:"oi_day_high"`
	OIDayLow           uint32         `gorm:"type:bigint;column:oi_day_low" json:"oi_day_low"`
	OHLC               datatypes.JSON `gorm:"type:jsonb;column:ohlc" json:"ohlc"`
	Depth              datatypes.JSON `gorm:"type:jsonb;column:depth" json:"depth"`
	UpdatedKinds       uint8          `gorm:"column:updated_kinds" json:"updated_kinds"`
	Timestamp          time.Time      `json:"timestamp"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at"`
}

// TableName specifies the table name for the TickSnapshot model
func (TickSnapshot) TableName() string {
	return TickSnapshotsTableName
}

// NewTickSnapshot flattens a MarketState into an archive row.
func NewTickSnapshot(state MarketState, instrument string) (TickSnapshot, error) {
	ohlcJSON, err := json.Marshal(state.OHLC)
	if err != nil {
		return TickSnapshot{}, err
	}
	depthJSON, err := json.Marshal(state.Depth)
	if err != nil {
		return TickSnapshot{}, err
	}
	return TickSnapshot{
		InstrumentToken:    state.Token,
		Instrument:         instrument,
		LastPrice:          state.LastPrice,
		LastTradedQuantity: state.LastTradedQuantity,
		AverageTradePrice:  state.AverageTradePrice,
		VolumeTraded:       state.VolumeTraded,
		TotalBuyQuantity:   state.TotalBuyQuantity,
		TotalSellQuantity:  state.TotalSellQuantity,
		OI:                 state.OI,
		OIDayHigh:          state.OIDayHigh,
		OIDayLow:           state.OIDayLow,
		OHLC:               datatypes.JSON(ohlcJSON),
		Depth:              datatypes.JSON(depthJSON),
		UpdatedKinds:       uint8(state.UpdatedKinds),
		Timestamp:          state.UpdatedAt,
	}, nil
}
