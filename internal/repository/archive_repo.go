// Package repository contains the repository layer for the Marketcore API
package repository

import (
	"fmt"

	"github.com/marketbots/marketcore/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TickChannel is the Postgres NOTIFY channel for archive flushes. The
// publish service listens on it and mirrors the payload to Redis.
const TickChannel = "CH:CORE:TICKS"

// ArchiveRepository writes tick snapshots to the unlogged archive table and
// notifies the tick channel on flush.
type ArchiveRepository struct {
	DB *gorm.DB
}

// NewArchiveRepository creates a new archive repository
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{DB: db}
}

// UpsertTickSnapshots inserts a batch of snapshots, last write wins on
// instrument_token.
func (r *ArchiveRepository) UpsertTickSnapshots(rows []models.TickSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_token"}},
		UpdateAll: true,
	}).Create(&rows).Error
}

// NotifyTickChannel emits a Postgres NOTIFY with the flushed row count.
func (r *ArchiveRepository) NotifyTickChannel(count int) error {
	payload := fmt.Sprintf(`{"flushed":%d}`, count)
	return r.DB.Exec("SELECT pg_notify(?, ?)", TickChannel, payload).Error
}

// TruncateTickSnapshots truncates the archive table
func (r *ArchiveRepository) TruncateTickSnapshots() error {
	return r.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s", models.TickSnapshotsTableName)).Error
}
