// Package repository contains the repository layer for the Marketcore API
package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/marketbots/marketcore/internal/models"
	"gorm.io/gorm"
)

// InstrumentRepository persists loaded contract master generations for ops
// queries. The in-memory generation is the read path; this table is a side
// channel.
type InstrumentRepository struct {
	DB *gorm.DB
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{DB: db}
}

// TruncateInstruments truncates the instruments table
func (r *InstrumentRepository) TruncateInstruments() error {
	return r.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s", models.InstrumentsTableName)).Error
}

// InsertInstruments inserts a batch of instruments into the database
func (r *InstrumentRepository) InsertInstruments(records []models.InstrumentRecord) (int64, error) {
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*13)

	now := time.Now().Format("2006-01-02 15:04:05")

	for _, record := range records {
		valueStrings = append(valueStrings, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		valueArgs = append(valueArgs,
			record.InstrumentToken,
			record.ExchangeToken,
			record.Tradingsymbol,
			record.Name,
			record.Expiry,
			record.Strike,
			record.TickSize,
			record.LotSize,
			record.InstrumentType,
			record.Series,
			record.Segment,
			record.Exchange,
			now,
		)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (instrument_token, exchange_token, tradingsymbol, name, expiry, strike, tick_size, lot_size, instrument_type, series, segment, exchange, updated_at) VALUES %s",
		models.InstrumentsTableName,
		strings.Join(valueStrings, ","),
	)

	result := r.DB.Exec(stmt, valueArgs...)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert batch into %s: %v", models.InstrumentsTableName, result.Error)
	}

	return result.RowsAffected, nil
}

// GetInstrumentsRecordCount returns the number of records in the instruments table
func (r *InstrumentRepository) GetInstrumentsRecordCount() (int64, error) {
	var count int64
	err := r.DB.Table(models.InstrumentsTableName).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get instruments record count: %v", err)
	}
	return count, nil
}

// GetInstrumentsByTokens gets instruments by tokens
func (r *InstrumentRepository) GetInstrumentsByTokens(tokens []uint32) ([]models.InstrumentRecord, error) {
	var instruments []models.InstrumentRecord
	if err := r.DB.Where("instrument_token IN ?", tokens).Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}
