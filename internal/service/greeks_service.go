// Package service contains the service layer for the Marketcore API
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
)

// GreeksConfig holds the runtime-tunable trigger thresholds. Non-option
// instruments recompute only when both gates pass; options are never gated.
type GreeksConfig struct {
	MinInterval   time.Duration
	MinPriceDelta float64
	Workers       int
	QueueSize     int
	RiskFreeRate  float64
}

// GreeksInput is one computation request.
type GreeksInput struct {
	Token        uint32
	Seq          uint64
	InputTime    time.Time
	Price        float64
	Spot         float64
	Strike       float64
	OptionType   string
	Expiry       string
	RiskFreeRate float64
}

// GreeksResult carries computed values to the analytics sink.
type GreeksResult struct {
	Token     uint32    `json:"instrument_token"`
	Seq       uint64    `json:"seq"`
	InputTime time.Time `json:"input_time"`
	Price     float64   `json:"price"`
	Spot      float64   `json:"spot"`
	IV        float64   `json:"iv"`
	Delta     float64   `json:"delta"`
	Gamma     float64   `json:"gamma"`
	Vega      float64   `json:"vega"`
	Theta     float64   `json:"theta"`
}

// Computer performs the derived-analytics computation for one input.
type Computer interface {
	Compute(in GreeksInput) (GreeksResult, error)
}

// AnalyticsSink receives completed, non-stale computation results.
type AnalyticsSink interface {
	OnGreeks(result GreeksResult)
}

// tokenGate is the per-token trigger state: {Idle} -> qualifying event ->
// {Computing} -> result published or discarded -> {Idle}.
type tokenGate struct {
	mu        sync.Mutex
	lastRun   time.Time
	lastPrice float64
	hasPrice  bool
	latestSeq atomic.Uint64
}

// GreeksService subscribes to the distributor and decides, per ChangeEvent,
// whether to dispatch a recomputation. Options recompute unthrottled on
// trade or quote updates; everything else is gated by elapsed time and price
// movement. In-flight computations are never cancelled; a result that lost
// the race to a newer input is discarded before it reaches the sink.
type GreeksService struct {
	cfg         GreeksConfig
	store       *PriceStore
	instruments *InstrumentService
	computer    Computer
	sink        AnalyticsSink

	mu    sync.Mutex
	gates map[uint32]*tokenGate

	jobs       chan GreeksInput
	dispatched atomic.Uint64
	throttled  atomic.Uint64
	stale      atomic.Uint64
}

// NewGreeksService creates the trigger. computer and sink must be non-nil.
func NewGreeksService(cfg GreeksConfig, store *PriceStore, instruments *InstrumentService, computer Computer, sink AnalyticsSink) *GreeksService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &GreeksService{
		cfg:         cfg,
		store:       store,
		instruments: instruments,
		computer:    computer,
		sink:        sink,
		gates:       make(map[uint32]*tokenGate),
		jobs:        make(chan GreeksInput, cfg.QueueSize),
	}
}

// Start launches the worker pool and the event consumer for sub.
// Computation never blocks ingestion: the consumer only enqueues.
func (s *GreeksService) Start(ctx context.Context, sub *Subscription) {
	s.startWorkers(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				s.OnChangeEvent(ev)
			}
		}
	}()
}

// startWorkers launches the computation pool without an event consumer.
func (s *GreeksService) startWorkers(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		go s.worker(ctx)
	}
}

func (s *GreeksService) gate(token uint32) *tokenGate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gates[token]
	if g == nil {
		g = &tokenGate{}
		s.gates[token] = g
	}
	return g
}

// OnChangeEvent applies the trigger policy to one event.
func (s *GreeksService) OnChangeEvent(ev models.ChangeEvent) {
	meta, err := s.instruments.LookupByToken(ev.Token)
	if err != nil {
		return
	}
	price, hasPrice := ev.Price()
	g := s.gate(ev.Token)

	if meta.IsOption() {
		// Latency-sensitive class: every trade or quote tick recomputes.
		if !ev.Kind.Has(models.KindTrade) && !ev.Kind.Has(models.KindQuote) {
			return
		}
		if !hasPrice {
			return
		}
		g.mu.Lock()
		g.lastRun = ev.Timestamp
		g.lastPrice = price
		g.hasPrice = true
		g.mu.Unlock()
		s.dispatch(ev, meta, price)
		return
	}

	if !hasPrice {
		// A throttled instrument without a price move never qualifies.
		s.throttled.Add(1)
		return
	}
	g.mu.Lock()
	elapsed := ev.Timestamp.Sub(g.lastRun)
	moved := !g.hasPrice || abs(price-g.lastPrice) >= s.cfg.MinPriceDelta
	qualify := (g.lastRun.IsZero() || elapsed >= s.cfg.MinInterval) && moved
	if qualify {
		g.lastRun = ev.Timestamp
		g.lastPrice = price
		g.hasPrice = true
	}
	g.mu.Unlock()
	if !qualify {
		s.throttled.Add(1)
		return
	}
	s.dispatch(ev, meta, price)
}

// dispatch records the input version for latest-wins and enqueues the job.
// A full queue drops the job; a later event for the token supersedes it
// anyway.
func (s *GreeksService) dispatch(ev models.ChangeEvent, meta models.InstrumentRecord, price float64) {
	g := s.gate(ev.Token)
	g.latestSeq.Store(ev.Seq)

	in := GreeksInput{
		Token:        ev.Token,
		Seq:          ev.Seq,
		InputTime:    ev.Timestamp,
		Price:        price,
		Strike:       meta.Strike,
		OptionType:   meta.InstrumentType,
		Expiry:       meta.Expiry,
		RiskFreeRate: s.cfg.RiskFreeRate,
	}
	if underlying, ok := s.instruments.UnderlyingToken(meta.Name); ok {
		if spot, err := s.store.Snapshot(underlying); err == nil {
			in.Spot = spot.LastPrice
		}
	}

	select {
	case s.jobs <- in:
		s.dispatched.Add(1)
	default:
		s.stale.Add(1)
	}
}

func (s *GreeksService) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.jobs:
			result, err := s.computer.Compute(in)
			if err != nil {
				zaplogger.Debug("greeks computation failed", zaplogger.Fields{
					"token": in.Token,
					"error": err.Error(),
				})
				continue
			}
			// Latest wins: discard if a newer input was recorded while this
			// computation was in flight.
			if s.gate(in.Token).latestSeq.Load() != in.Seq {
				s.stale.Add(1)
				continue
			}
			s.sink.OnGreeks(result)
		}
	}
}

// Dispatched returns the number of computations dispatched.
func (s *GreeksService) Dispatched() uint64 { return s.dispatched.Load() }

// Throttled returns the number of events dropped by the throttle gates.
func (s *GreeksService) Throttled() uint64 { return s.throttled.Load() }

// Stale returns the number of superseded computations discarded.
func (s *GreeksService) Stale() uint64 { return s.stale.Load() }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
