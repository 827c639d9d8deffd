// Package models contains the models for the Marketcore API
package models

import "time"

// InstrumentsTableName is the name of the table for instruments
var InstrumentsTableName = "instruments"

// Instrument type codes as carried by the contract master.
const (
	InstrumentTypeFuture = "FUT"
	InstrumentTypeCall   = "CE"
	InstrumentTypePut    = "PE"
	InstrumentTypeEquity = "EQ"
	InstrumentTypeSpread = "SP"
)

// InstrumentRecord represents one contract master row. Records are immutable
// for the lifetime of a load generation.
type InstrumentRecord struct {
	InstrumentToken uint32    `gorm:"primaryKey;uniqueIndex;index" csv:"instrument_token" json:"instrument_token"`
	ExchangeToken   uint32    `csv:"exchange_token" json:"exchange_token"`
	Tradingsymbol   string    `gorm:"index:idx_exchange_tradingsymbol,priority:2" csv:"tradingsymbol" json:"tradingsymbol"`
	Name            string    `gorm:"index:idx_name_expiry,priority:1" csv:"name" json:"name"`
	Expiry          string    `gorm:"index:idx_name_expiry,priority:2" csv:"expiry" json:"expiry"`
	Strike          float64   `csv:"strike" json:"strike"`
	TickSize        float64   `csv:"tick_size" json:"tick_size"`
	LotSize         uint32    `csv:"lot_size" json:"lot_size"`
	InstrumentType  string    `csv:"instrument_type" json:"instrument_type"`
	Series          string    `csv:"series" json:"series"`
	Segment         string    `csv:"segment" json:"segment"`
	Exchange        string    `gorm:"index:idx_exchange_tradingsymbol,priority:1" csv:"exchange" json:"exchange"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName specifies the table name for the InstrumentRecord model
func (InstrumentRecord) TableName() string {
	return InstrumentsTableName
}

// IsOption reports whether the record is a call or a put.
func (r InstrumentRecord) IsOption() bool {
	return r.InstrumentType == InstrumentTypeCall || r.InstrumentType == InstrumentTypePut
}

// IsDerivative reports whether the record carries an expiry.
func (r InstrumentRecord) IsDerivative() bool {
	return r.Expiry != ""
}

// SegmentKey identifies the (exchange, segment) index the record belongs to.
func (r InstrumentRecord) SegmentKey() string {
	return r.Exchange + ":" + r.Segment
}

// LoadStats is returned by a successful master load.
type LoadStats struct {
	Total    int            `json:"total"`
	Futures  int            `json:"futures"`
	Options  int            `json:"options"`
	Equities int            `json:"equities"`
	Other    int            `json:"other"`
	Segments map[string]int `json:"segments"`
	LoadedAt time.Time      `json:"loaded_at"`
}

// QueryInstrumentsParams are the filters accepted by the instrument query API.
type QueryInstrumentsParams struct {
	Exchange       string  `query:"exchange"`
	Tradingsymbol  string  `query:"tradingsymbol"`
	Name           string  `query:"name"`
	Expiry         string  `query:"expiry"`
	Series         string  `query:"series"`
	Segment        string  `query:"segment"`
	InstrumentType string  `query:"instrument_type"`
	StrikeFrom     float64 `query:"strike_from"`
	StrikeTo       float64 `query:"strike_to"`
}
