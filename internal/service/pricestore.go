// Package service contains the service layer for the Marketcore API
package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketbots/marketcore/internal/models"
)

const priceStoreShards = 256

// TokenValidator reports whether a token belongs to the loaded instrument
// universe. The price store depends on the instrument repository only
// through this check, never for data.
type TokenValidator func(token uint32) bool

// marketSlot is the per-token record. Slots are created lazily on first
// update and live for the process lifetime. Each slot carries its own lock
// so unrelated tokens never contend.
type marketSlot struct {
	mu    sync.Mutex
	state models.MarketState
}

type storeShard struct {
	mu    sync.RWMutex
	slots map[uint32]*marketSlot
}

// PriceStore holds one mutable MarketState per instrument token and supports
// concurrent partial updates and snapshot reads. Readers and event consumers
// only ever receive value copies.
type PriceStore struct {
	shards   [priceStoreShards]storeShard
	validate TokenValidator
	seq      atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64
}

// NewPriceStore creates a price store. validate may be nil, in which case
// every token is accepted (used by tests and replay tooling).
func NewPriceStore(validate TokenValidator) *PriceStore {
	s := &PriceStore{validate: validate}
	for i := range s.shards {
		s.shards[i].slots = make(map[uint32]*marketSlot)
	}
	return s
}

func (s *PriceStore) slot(token uint32, create bool) *marketSlot {
	shard := &s.shards[token%priceStoreShards]
	shard.mu.RLock()
	sl := shard.slots[token]
	shard.mu.RUnlock()
	if sl != nil || !create {
		return sl
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if sl = shard.slots[token]; sl == nil {
		sl = &marketSlot{state: models.MarketState{Token: token}}
		shard.slots[token] = sl
	}
	return sl
}

// ApplyUpdate merges the field groups present in u into the token's record,
// marks the update-kind flags, stamps the update time and returns a
// value-copy ChangeEvent scoped to u.Kind. An update for a token outside the
// loaded universe is rejected and counted, never stored.
func (s *PriceStore) ApplyUpdate(u models.Update) (models.ChangeEvent, error) {
	if u.Kind == 0 {
		s.rejected.Add(1)
		return models.ChangeEvent{}, ErrEmptyUpdate
	}
	if s.validate != nil && !s.validate(u.Token) {
		s.rejected.Add(1)
		return models.ChangeEvent{}, ErrUnknownToken
	}

	now := time.Now()
	seq := s.seq.Add(1)
	sl := s.slot(u.Token, true)

	sl.mu.Lock()
	mergeUpdate(&sl.state, u, now)
	state := sl.state
	sl.mu.Unlock()

	s.applied.Add(1)
	return buildChangeEvent(state, u.Kind, seq), nil
}

// Snapshot returns a consistent value copy of the full MarketState, or
// ErrNoData if the token has never been updated.
func (s *PriceStore) Snapshot(token uint32) (models.MarketState, error) {
	if s.validate != nil && !s.validate(token) {
		return models.MarketState{}, ErrUnknownToken
	}
	sl := s.slot(token, false)
	if sl == nil {
		return models.MarketState{}, ErrNoData
	}
	sl.mu.Lock()
	state := sl.state
	sl.mu.Unlock()
	if state.UpdatedKinds == 0 {
		return models.MarketState{}, ErrNoData
	}
	return state, nil
}

// Applied returns the number of updates applied since startup.
func (s *PriceStore) Applied() uint64 { return s.applied.Load() }

// Rejected returns the number of unknown-token updates dropped.
func (s *PriceStore) Rejected() uint64 { return s.rejected.Load() }

// mergeUpdate is the only writer of MarketState fields. It runs inside the
// slot lock; no allocation happens here.
func mergeUpdate(state *models.MarketState, u models.Update, now time.Time) {
	if u.Trade != nil {
		state.LastPrice = u.Trade.LastPrice
		state.LastTradedQuantity = u.Trade.LastTradedQuantity
		state.AverageTradePrice = u.Trade.AverageTradePrice
		state.VolumeTraded = u.Trade.VolumeTraded
		state.LastTradeTime = u.Trade.LastTradeTime
	}
	if u.Quote != nil {
		state.LastPrice = u.Quote.LastPrice
		state.BestBidPrice = u.Quote.BestBidPrice
		state.BestBidQuantity = u.Quote.BestBidQuantity
		state.BestAskPrice = u.Quote.BestAskPrice
		state.BestAskQuantity = u.Quote.BestAskQuantity
		state.OHLC = u.Quote.OHLC
	}
	if u.Depth != nil {
		state.Depth = u.Depth.Depth
		state.TotalBuyQuantity = u.Depth.TotalBuyQuantity
		state.TotalSellQuantity = u.Depth.TotalSellQuantity
	}
	if u.OI != nil {
		state.OI = u.OI.OI
		state.OIDayHigh = u.OI.OIDayHigh
		state.OIDayLow = u.OI.OIDayLow
	}
	state.UpdatedKinds |= u.Kind
	state.UpdatedAt = now
}

// buildChangeEvent copies only the field groups named by kind out of a state
// copy. Payload structs are freshly allocated so a later store mutation can
// never show through a delivered event.
func buildChangeEvent(state models.MarketState, kind models.UpdateKind, seq uint64) models.ChangeEvent {
	ev := models.ChangeEvent{
		Token:     state.Token,
		Kind:      kind,
		Seq:       seq,
		Timestamp: state.UpdatedAt,
	}
	if kind.Has(models.KindTrade) {
		ev.Trade = &models.TradeFields{
			LastPrice:          state.LastPrice,
			LastTradedQuantity: state.LastTradedQuantity,
			AverageTradePrice:  state.AverageTradePrice,
			VolumeTraded:       state.VolumeTraded,
			LastTradeTime:      state.LastTradeTime,
		}
	}
	if kind.Has(models.KindQuote) {
		ev.Quote = &models.QuoteFields{
			LastPrice:       state.LastPrice,
			BestBidPrice:    state.BestBidPrice,
			BestBidQuantity: state.BestBidQuantity,
			BestAskPrice:    state.BestAskPrice,
			BestAskQuantity: state.BestAskQuantity,
			OHLC:            state.OHLC,
		}
	}
	if kind.Has(models.KindDepth) {
		ev.Depth = &models.DepthFields{
			Depth:             state.Depth,
			TotalBuyQuantity:  state.TotalBuyQuantity,
			TotalSellQuantity: state.TotalSellQuantity,
		}
	}
	if kind.Has(models.KindOI) {
		ev.OI = &models.OIFields{
			OI:        state.OI,
			OIDayHigh: state.OIDayHigh,
			OIDayLow:  state.OIDayLow,
		}
	}
	return ev
}
