package service

import (
	"context"
	"testing"
	"time"

	"github.com/marketbots/marketcore/internal/models"
)

// recordingComputer echoes inputs back as results, optionally blocking until
// released so a test can race a newer input against an in-flight computation.
type recordingComputer struct {
	block chan struct{}
}

func (c *recordingComputer) Compute(in GreeksInput) (GreeksResult, error) {
	if c.block != nil {
		<-c.block
	}
	return GreeksResult{Token: in.Token, Seq: in.Seq, Price: in.Price, Spot: in.Spot}, nil
}

type channelSink struct {
	results chan GreeksResult
}

func (s *channelSink) OnGreeks(result GreeksResult) {
	s.results <- result
}

// greeksMaster is a minimal universe: one option chain, its front future and
// the cash underlying.
func greeksMaster() []models.InstrumentRecord {
	expiry := time.Now().AddDate(0, 1, 0).Format("2006-01-02")
	return []models.InstrumentRecord{
		{InstrumentToken: 100, Tradingsymbol: "NIFTY", Name: "NIFTY", InstrumentType: "EQ", Series: "EQ", Segment: "INDICES", Exchange: "NSE"},
		{InstrumentToken: 200, Tradingsymbol: "NIFTYFUT", Name: "NIFTY", Expiry: expiry, InstrumentType: "FUT", Segment: "NFO-FUT", Exchange: "NFO"},
		{InstrumentToken: 300, Tradingsymbol: "NIFTY24000CE", Name: "NIFTY", Expiry: expiry, Strike: 24000, InstrumentType: "CE", Segment: "NFO-OPT", Exchange: "NFO"},
	}
}

func newGreeksFixture(t *testing.T, cfg GreeksConfig, computer Computer) (*GreeksService, *PriceStore, *channelSink) {
	t.Helper()
	instruments := NewInstrumentService(nil, 20000)
	if _, err := instruments.Load(greeksMaster()); err != nil {
		t.Fatalf("load master: %v", err)
	}
	store := NewPriceStore(instruments.HasToken)

	// Seed the spot price used to resolve the underlying.
	if _, err := store.ApplyUpdate(tradeUpdate(100, 24100)); err != nil {
		t.Fatalf("seed spot: %v", err)
	}

	sink := &channelSink{results: make(chan GreeksResult, 100)}
	svc := NewGreeksService(cfg, store, instruments, computer, sink)
	return svc, store, sink
}

func applyAndTrigger(t *testing.T, svc *GreeksService, store *PriceStore, u models.Update) {
	t.Helper()
	ev, err := store.ApplyUpdate(u)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	svc.OnChangeEvent(ev)
}

func TestGreeks_OptionRecomputesEveryTradeAndQuote(t *testing.T) {
	cfg := GreeksConfig{MinInterval: time.Hour, MinPriceDelta: 1000, Workers: 1}
	svc, store, sink := newGreeksFixture(t, cfg, &recordingComputer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	// Throttle thresholds never apply to options.
	applyAndTrigger(t, svc, store, tradeUpdate(300, 150))
	applyAndTrigger(t, svc, store, tradeUpdate(300, 150.05))

	for i := 0; i < 2; i++ {
		select {
		case result := <-sink.results:
			if result.Token != 300 {
				t.Errorf("result token = %d, want 300", result.Token)
			}
			if result.Spot != 24100 {
				t.Errorf("result spot = %v, want 24100", result.Spot)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for result %d", i)
		}
	}
	if svc.Dispatched() != 2 {
		t.Errorf("dispatched = %d, want 2", svc.Dispatched())
	}
}

func TestGreeks_OptionIgnoresDepthAndOI(t *testing.T) {
	cfg := GreeksConfig{Workers: 1}
	svc, store, sink := newGreeksFixture(t, cfg, &recordingComputer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	applyAndTrigger(t, svc, store, depthUpdate(300))
	applyAndTrigger(t, svc, store, models.Update{
		Token: 300,
		Kind:  models.KindOI,
		OI:    &models.OIFields{OI: 12000},
	})

	select {
	case result := <-sink.results:
		t.Fatalf("depth/oi update dispatched a computation: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	if svc.Dispatched() != 0 {
		t.Errorf("dispatched = %d, want 0", svc.Dispatched())
	}
}

func TestGreeks_FutureThrottledByInterval(t *testing.T) {
	cfg := GreeksConfig{MinInterval: time.Hour, MinPriceDelta: 0.05, Workers: 1}
	svc, store, sink := newGreeksFixture(t, cfg, &recordingComputer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	// First event always qualifies; the second is inside the interval.
	applyAndTrigger(t, svc, store, tradeUpdate(200, 24150))
	applyAndTrigger(t, svc, store, tradeUpdate(200, 24250))

	select {
	case result := <-sink.results:
		if result.Price != 24150 {
			t.Errorf("result price = %v, want 24150", result.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first result")
	}
	select {
	case result := <-sink.results:
		t.Fatalf("throttled event dispatched: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	if svc.Throttled() != 1 {
		t.Errorf("throttled = %d, want 1", svc.Throttled())
	}
}

func TestGreeks_FutureThrottledByPriceDelta(t *testing.T) {
	cfg := GreeksConfig{MinInterval: 0, MinPriceDelta: 0.05, Workers: 1}
	svc, store, sink := newGreeksFixture(t, cfg, &recordingComputer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	applyAndTrigger(t, svc, store, tradeUpdate(200, 24150))
	// Moved less than the delta threshold: gated even though time qualifies.
	applyAndTrigger(t, svc, store, tradeUpdate(200, 24150.01))
	// Moved past the threshold: dispatches.
	applyAndTrigger(t, svc, store, tradeUpdate(200, 24150.10))

	prices := make([]float64, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case result := <-sink.results:
			prices = append(prices, result.Price)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for result %d", i)
		}
	}
	if prices[0] != 24150 || prices[1] != 24150.10 {
		t.Errorf("dispatched prices = %v, want [24150 24150.10]", prices)
	}
	if svc.Throttled() != 1 {
		t.Errorf("throttled = %d, want 1", svc.Throttled())
	}
}

func TestGreeks_ReapplyingIdenticalUpdateDoesNotRedispatch(t *testing.T) {
	cfg := GreeksConfig{MinInterval: 0, MinPriceDelta: 0.05, Workers: 1}
	svc, store, sink := newGreeksFixture(t, cfg, &recordingComputer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	// An identical re-apply carries a zero price move, so a throttled
	// instrument must not recompute.
	u := tradeUpdate(200, 24150)
	applyAndTrigger(t, svc, store, u)
	applyAndTrigger(t, svc, store, u)

	select {
	case result := <-sink.results:
		if result.Price != 24150 {
			t.Errorf("result price = %v, want 24150", result.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first result")
	}
	select {
	case result := <-sink.results:
		t.Fatalf("identical update recomputed: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	if svc.Dispatched() != 1 {
		t.Errorf("dispatched = %d, want 1", svc.Dispatched())
	}
	if svc.Throttled() != 1 {
		t.Errorf("throttled = %d, want 1", svc.Throttled())
	}
}

func TestGreeks_StaleResultDiscarded(t *testing.T) {
	computer := &recordingComputer{block: make(chan struct{})}
	cfg := GreeksConfig{Workers: 1, QueueSize: 4}
	svc, store, sink := newGreeksFixture(t, cfg, computer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.startWorkers(ctx)

	applyAndTrigger(t, svc, store, tradeUpdate(300, 150))
	// Let the worker pick up the first job before superseding it.
	time.Sleep(20 * time.Millisecond)
	applyAndTrigger(t, svc, store, tradeUpdate(300, 151))

	// Release both computations.
	close(computer.block)

	select {
	case result := <-sink.results:
		if result.Price != 151 {
			t.Errorf("superseded result reached sink: %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
	select {
	case result := <-sink.results:
		t.Fatalf("stale result delivered: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	if svc.Stale() != 1 {
		t.Errorf("stale = %d, want 1", svc.Stale())
	}
}
