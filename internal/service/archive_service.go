// Package service contains the service layer for the Marketcore API
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/internal/repository"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
	"gorm.io/gorm"
)

// ArchiveService
const (
	archiveChannelCapacity          = 100000
	channelCapacityWarningThreshold = 0.5 // 50% full
	archiveMonitorInterval          = 10 * time.Second
)

// ArchiveConfig tunes the batch writer.
type ArchiveConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// ArchiveService is a wildcard subscriber that periodically flattens the
// latest MarketState of every token touched since the last flush into the
// unlogged tick_snapshots table, last-write-wins per token. Each flush emits
// a Postgres NOTIFY consumed by the publish bridge.
type ArchiveService struct {
	cfg         ArchiveConfig
	repo        *repository.ArchiveRepository
	store       *PriceStore
	instruments *InstrumentService

	mu    sync.Mutex
	dirty map[uint32]struct{}

	sub *Subscription
}

// NewArchiveService creates the archive writer.
func NewArchiveService(cfg ArchiveConfig, db *gorm.DB, store *PriceStore, instruments *InstrumentService) *ArchiveService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 1 * time.Second
	}
	return &ArchiveService{
		cfg:         cfg,
		repo:        repository.NewArchiveRepository(db),
		store:       store,
		instruments: instruments,
		dirty:       make(map[uint32]struct{}),
	}
}

// Start subscribes to the distributor and launches the consume, flush and
// monitor loops.
func (s *ArchiveService) Start(ctx context.Context, d *Distributor) {
	s.sub = d.Subscribe(archiveChannelCapacity)
	go s.consume(ctx)
	go s.flushLoop(ctx)
	go s.monitorChannel(ctx)
}

func (s *ArchiveService) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.mu.Lock()
			s.dirty[ev.Token] = struct{}{}
			s.mu.Unlock()
		}
	}
}

func (s *ArchiveService) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// flush snapshots every dirty token and upserts the rows in batches.
func (s *ArchiveService) flush() {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return
	}
	tokens := make([]uint32, 0, len(s.dirty))
	for token := range s.dirty {
		tokens = append(tokens, token)
	}
	s.dirty = make(map[uint32]struct{})
	s.mu.Unlock()

	rows := make([]models.TickSnapshot, 0, len(tokens))
	for _, token := range tokens {
		state, err := s.store.Snapshot(token)
		if err != nil {
			continue
		}
		instrument := ""
		if meta, err := s.instruments.LookupByToken(token); err == nil {
			instrument = fmt.Sprintf("%s:%s", meta.Exchange, meta.Tradingsymbol)
		}
		row, err := models.NewTickSnapshot(state, instrument)
		if err != nil {
			zaplogger.Error("failed to build tick snapshot", zaplogger.Fields{
				"token": token,
				"error": err.Error(),
			})
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}

	for i := 0; i < len(rows); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.repo.UpsertTickSnapshots(rows[i:end]); err != nil {
			zaplogger.Error("failed to flush tick snapshots", zaplogger.Fields{
				"batch": len(rows[i:end]),
				"error": err.Error(),
			})
			return
		}
	}

	if err := s.repo.NotifyTickChannel(len(rows)); err != nil {
		zaplogger.Error("failed to notify tick channel", zaplogger.Fields{"error": err.Error()})
	}
}

// monitorChannel warns when the subscription channel is filling up.
func (s *ArchiveService) monitorChannel(ctx context.Context) {
	ticker := time.NewTicker(archiveMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentCapacity := len(s.sub.ch)
			capacityPercentage := float64(currentCapacity) / float64(archiveChannelCapacity)
			if capacityPercentage >= channelCapacityWarningThreshold {
				zaplogger.Warn("Archive channel filling up", zaplogger.Fields{
					"used":      currentCapacity,
					"capacity":  archiveChannelCapacity,
					"coalesced": s.sub.Coalesced(),
				})
			}
		}
	}
}

// TruncateTickSnapshots clears the archive table.
func (s *ArchiveService) TruncateTickSnapshots() error {
	return s.repo.TruncateTickSnapshots()
}
