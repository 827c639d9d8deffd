// Package service contains the service layer for the Marketcore API
package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/marketbots/marketcore/internal/models"
)

// masterCSVColumns is the column count of the contract master dump:
// instrument_token, exchange_token, tradingsymbol, name, expiry, strike,
// tick_size, lot_size, instrument_type, series, segment, exchange.
const masterCSVColumns = 12

// ParseMasterCSV decodes a contract master CSV dump into records ready for
// Load. The first row is treated as a header and skipped.
func ParseMasterCSV(r io.Reader) ([]models.InstrumentRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = masterCSVColumns
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract master CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("contract master CSV has no data rows")
	}
	rows = rows[1:] // Skip header row

	records := make([]models.InstrumentRecord, 0, len(rows))
	for i, row := range rows {
		token, err := strconv.ParseUint(row[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad instrument_token %q: %w", i+2, row[0], err)
		}
		exchangeToken, _ := strconv.ParseUint(row[1], 10, 32)
		strike, _ := strconv.ParseFloat(row[5], 64)
		tickSize, _ := strconv.ParseFloat(row[6], 64)
		lotSize, _ := strconv.ParseUint(row[7], 10, 32)

		records = append(records, models.InstrumentRecord{
			InstrumentToken: uint32(token),
			ExchangeToken:   uint32(exchangeToken),
			Tradingsymbol:   row[2],
			Name:            row[3],
			Expiry:          row[4],
			Strike:          strike,
			TickSize:        tickSize,
			LotSize:         uint32(lotSize),
			InstrumentType:  row[8],
			Series:          row[9],
			Segment:         row[10],
			Exchange:        row[11],
		})
	}
	return records, nil
}
