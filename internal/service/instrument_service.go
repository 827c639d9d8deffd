// Package service contains the service layer for the Marketcore API
package service

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/internal/repository"
	"github.com/marketbots/marketcore/pkg/utils/state"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
	"gorm.io/gorm"
)

var masterUpdatedAtKey = "MASTER_UPDATED_AT"

// generation is one atomically published version of the contract master and
// its indices. Generations are immutable after publication; a reload builds
// a whole new one and swaps the pointer.
type generation struct {
	byToken    map[uint32]*models.InstrumentRecord
	segments   map[string]symbolIndex
	underlying map[string]uint32 // option chain name -> underlying token
	stats      models.LoadStats
}

// InstrumentService owns the in-memory contract master: bulk load with
// atomic generation swap, and read-only multi-key lookups. Persistence of
// the loaded master to Postgres is a side channel for ops queries; the read
// path never touches the database.
type InstrumentService struct {
	repo      *repository.InstrumentRepository
	state     *state.State
	threshold int
	gen       atomic.Pointer[generation]
}

// NewInstrumentService creates an instrument service. db may be nil, in
// which case loads are memory-only (tests). threshold is the record count at
// which a segment graduates from linear scan to multi-level indices.
func NewInstrumentService(db *gorm.DB, threshold int) *InstrumentService {
	s := &InstrumentService{threshold: threshold}
	if db != nil {
		s.repo = repository.NewInstrumentRepository(db)
		stateManager, err := state.NewState(db)
		if err != nil {
			zaplogger.Fatal("failed to create state manager", zaplogger.Fields{"error": err})
		}
		s.state = stateManager
	}
	return s
}

// Load validates records, builds per-segment indices and atomically swaps
// the active generation. On any validation failure the previous generation
// is retained and a *LoadError is returned; concurrent readers never observe
// a partially built index.
func (s *InstrumentService) Load(records []models.InstrumentRecord) (models.LoadStats, error) {
	byToken := make(map[uint32]*models.InstrumentRecord, len(records))
	bySegment := make(map[string][]*models.InstrumentRecord)
	stats := models.LoadStats{Segments: make(map[string]int)}
	duplicates := 0
	malformed := 0

	for i := range records {
		r := &records[i]
		if r.InstrumentToken == 0 || r.Tradingsymbol == "" {
			malformed++
			continue
		}
		if _, dup := byToken[r.InstrumentToken]; dup {
			duplicates++
			continue
		}
		byToken[r.InstrumentToken] = r
		key := r.SegmentKey()
		bySegment[key] = append(bySegment[key], r)
		stats.Segments[key]++
		switch r.InstrumentType {
		case models.InstrumentTypeFuture:
			stats.Futures++
		case models.InstrumentTypeCall, models.InstrumentTypePut:
			stats.Options++
		case models.InstrumentTypeEquity:
			stats.Equities++
		default:
			stats.Other++
		}
	}

	if duplicates > 0 || malformed > 0 {
		return models.LoadStats{}, &LoadError{
			Duplicates: duplicates,
			Malformed:  malformed,
			Reason:     "contract master failed validation",
		}
	}
	if len(byToken) == 0 {
		return models.LoadStats{}, &LoadError{Reason: "contract master is empty"}
	}

	stats.Total = len(byToken)
	stats.LoadedAt = time.Now()

	segments := make(map[string]symbolIndex, len(bySegment))
	for key, segRecords := range bySegment {
		if len(segRecords) >= s.threshold {
			segments[key] = newMultiIndex(segRecords)
		} else {
			segments[key] = newScanIndex(segRecords)
		}
	}

	next := &generation{
		byToken:    byToken,
		segments:   segments,
		underlying: buildUnderlyingMap(byToken),
		stats:      stats,
	}
	s.gen.Store(next)

	zaplogger.Info("Contract master loaded", zaplogger.Fields{
		"total":    stats.Total,
		"futures":  stats.Futures,
		"options":  stats.Options,
		"equities": stats.Equities,
		"segments": len(stats.Segments),
	})

	if s.repo != nil {
		if err := s.persist(records); err != nil {
			// The in-memory generation is already live; persistence is a
			// side channel and must not fail the load.
			zaplogger.Error("failed to persist contract master", zaplogger.Fields{"error": err.Error()})
		}
	}
	return stats, nil
}

// persist truncates and batch-inserts the loaded master, then records the
// load time in the state table.
func (s *InstrumentService) persist(records []models.InstrumentRecord) error {
	if err := s.repo.TruncateInstruments(); err != nil {
		return err
	}
	batchSize := 500
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if _, err := s.repo.InsertInstruments(records[i:end]); err != nil {
			return err
		}
	}
	return s.state.Set(masterUpdatedAtKey, time.Now().Format("2006-01-02 15:04:05"))
}

// IsLoadRequired reports whether the daily master refresh should run, using
// the state table bookkeeping (true when never loaded, or last load was
// before today 08:15).
func (s *InstrumentService) IsLoadRequired() bool {
	if s.state == nil {
		return true
	}
	lastLoaded, err := s.state.Get(masterUpdatedAtKey)
	if err != nil || lastLoaded == "" {
		return true
	}
	lastLoadedTime, err := time.Parse("2006-01-02 15:04:05", lastLoaded)
	if err != nil {
		return true
	}
	now := time.Now()
	if lastLoadedTime.Day() != now.Day() {
		return true
	}
	if lastLoadedTime.Hour() > 8 {
		return false
	}
	return !(lastLoadedTime.Hour() == 8 && lastLoadedTime.Minute() >= 15)
}

// buildUnderlyingMap links each derivative chain name to a spot token:
// the equity with the same trading symbol when present, otherwise the
// nearest-expiry future.
func buildUnderlyingMap(byToken map[uint32]*models.InstrumentRecord) map[string]uint32 {
	underlying := make(map[string]uint32)
	futExpiry := make(map[string]string)
	for _, r := range byToken {
		if r.InstrumentType != models.InstrumentTypeFuture {
			continue
		}
		if prev, ok := futExpiry[r.Name]; ok && prev <= r.Expiry {
			continue
		}
		futExpiry[r.Name] = r.Expiry
		underlying[r.Name] = r.InstrumentToken
	}
	// A cash instrument with the same symbol beats the front future.
	for _, r := range byToken {
		if r.InstrumentType == models.InstrumentTypeEquity {
			underlying[r.Tradingsymbol] = r.InstrumentToken
		}
	}
	return underlying
}

// HasToken reports whether the token is in the current generation. Used by
// the price store as its token validator.
func (s *InstrumentService) HasToken(token uint32) bool {
	gen := s.gen.Load()
	if gen == nil {
		return false
	}
	_, ok := gen.byToken[token]
	return ok
}

// LookupByToken returns the metadata record for a token.
func (s *InstrumentService) LookupByToken(token uint32) (models.InstrumentRecord, error) {
	gen := s.gen.Load()
	if gen == nil {
		return models.InstrumentRecord{}, ErrNoGeneration
	}
	r, ok := gen.byToken[token]
	if !ok {
		return models.InstrumentRecord{}, ErrUnknownToken
	}
	return *r, nil
}

// LookupBySymbol returns tokens for a trading symbol across all segments,
// optionally filtered by series.
func (s *InstrumentService) LookupBySymbol(symbol, series string) ([]uint32, error) {
	gen := s.gen.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	var tokens []uint32
	for _, idx := range gen.segments {
		tokens = append(tokens, idx.lookupSymbol(symbol, series)...)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens, nil
}

// LookupByExpiryStrike returns the (symbol, expiry) chain restricted to the
// inclusive strike range, ordered by ascending strike.
func (s *InstrumentService) LookupByExpiryStrike(symbol, expiry string, lo, hi float64) ([]uint32, error) {
	gen := s.gen.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	var tokens []uint32
	for _, idx := range gen.segments {
		tokens = append(tokens, idx.expiryStrikeRange(symbol, expiry, lo, hi)...)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, b := gen.byToken[tokens[i]], gen.byToken[tokens[j]]
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.InstrumentToken < b.InstrumentToken
	})
	return tokens, nil
}

// UniqueSymbols returns the distinct trading symbols of the current
// generation, optionally filtered by series.
func (s *InstrumentService) UniqueSymbols(series string) ([]string, error) {
	gen := s.gen.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	seen := make(map[string]struct{})
	var symbols []string
	for _, idx := range gen.segments {
		for _, sym := range idx.uniqueSymbols(series) {
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// UnderlyingToken resolves the spot token used to price a derivative chain.
func (s *InstrumentService) UnderlyingToken(name string) (uint32, bool) {
	gen := s.gen.Load()
	if gen == nil {
		return 0, false
	}
	token, ok := gen.underlying[name]
	return token, ok
}

// Stats returns the load stats of the current generation.
func (s *InstrumentService) Stats() (models.LoadStats, error) {
	gen := s.gen.Load()
	if gen == nil {
		return models.LoadStats{}, ErrNoGeneration
	}
	return gen.stats, nil
}

// Query runs a predicate filter over the current generation. This is the
// ad-hoc ops query surface; hot paths use the keyed lookups above.
func (s *InstrumentService) Query(params models.QueryInstrumentsParams) ([]models.InstrumentRecord, error) {
	gen := s.gen.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	var out []models.InstrumentRecord
	for _, r := range gen.byToken {
		if params.Exchange != "" && r.Exchange != params.Exchange {
			continue
		}
		if params.Segment != "" && r.Segment != params.Segment {
			continue
		}
		if params.Series != "" && r.Series != params.Series {
			continue
		}
		if params.InstrumentType != "" && r.InstrumentType != params.InstrumentType {
			continue
		}
		if params.Name != "" && r.Name != params.Name {
			continue
		}
		if params.Expiry != "" && r.Expiry != params.Expiry {
			continue
		}
		if params.Tradingsymbol != "" && !strings.Contains(r.Tradingsymbol, params.Tradingsymbol) {
			continue
		}
		if params.StrikeTo > 0 && (r.Strike < params.StrikeFrom || r.Strike > params.StrikeTo) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InstrumentToken < out[j].InstrumentToken
	})
	return out, nil
}
