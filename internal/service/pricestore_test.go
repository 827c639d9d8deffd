package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marketbots/marketcore/internal/models"
)

func tradeUpdate(token uint32, price float64) models.Update {
	return models.Update{
		Token: token,
		Kind:  models.KindTrade,
		Trade: &models.TradeFields{
			LastPrice:          price,
			LastTradedQuantity: 10,
			AverageTradePrice:  price,
			VolumeTraded:       1000,
			LastTradeTime:      time.Now(),
		},
	}
}

func depthUpdate(token uint32) models.Update {
	return models.Update{
		Token: token,
		Kind:  models.KindDepth,
		Depth: &models.DepthFields{
			Depth: models.MarketDepth{
				Buy:  [5]models.DepthItem{{Price: 99.5, Quantity: 50, Orders: 2}},
				Sell: [5]models.DepthItem{{Price: 100.5, Quantity: 75, Orders: 3}},
			},
			TotalBuyQuantity:  500,
			TotalSellQuantity: 600,
		},
	}
}

func TestApplyUpdate_MergesFieldGroups(t *testing.T) {
	store := NewPriceStore(nil)

	if _, err := store.ApplyUpdate(tradeUpdate(501, 100.5)); err != nil {
		t.Fatalf("trade update: %v", err)
	}
	if _, err := store.ApplyUpdate(depthUpdate(501)); err != nil {
		t.Fatalf("depth update: %v", err)
	}

	state, err := store.Snapshot(501)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if state.LastPrice != 100.5 {
		t.Errorf("depth update clobbered trade fields: last_price = %v", state.LastPrice)
	}
	if state.TotalBuyQuantity != 500 || state.TotalSellQuantity != 600 {
		t.Errorf("depth fields not merged: buy=%d sell=%d", state.TotalBuyQuantity, state.TotalSellQuantity)
	}
	if !state.UpdatedKinds.Has(models.KindTrade) || !state.UpdatedKinds.Has(models.KindDepth) {
		t.Errorf("updated kinds should accumulate, got %s", state.UpdatedKinds)
	}
}

func TestApplyUpdate_EventScopedToKind(t *testing.T) {
	store := NewPriceStore(nil)

	if _, err := store.ApplyUpdate(tradeUpdate(501, 100.5)); err != nil {
		t.Fatalf("trade update: %v", err)
	}
	ev, err := store.ApplyUpdate(depthUpdate(501))
	if err != nil {
		t.Fatalf("depth update: %v", err)
	}

	if ev.Depth == nil {
		t.Fatal("depth event carries no depth payload")
	}
	if ev.Trade != nil || ev.Quote != nil || ev.OI != nil {
		t.Errorf("depth event carries foreign field groups: %+v", ev)
	}
	if ev.Kind != models.KindDepth {
		t.Errorf("expected kind depth, got %s", ev.Kind)
	}
}

func TestApplyUpdate_EventPayloadIsCopy(t *testing.T) {
	store := NewPriceStore(nil)

	ev, err := store.ApplyUpdate(tradeUpdate(42, 100))
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := store.ApplyUpdate(tradeUpdate(42, 200)); err != nil {
		t.Fatalf("second update: %v", err)
	}

	if ev.Trade.LastPrice != 100 {
		t.Errorf("delivered event mutated by later update: %v", ev.Trade.LastPrice)
	}
}

func TestApplyUpdate_ReapplyingIdenticalUpdateLeavesSnapshotUnchanged(t *testing.T) {
	store := NewPriceStore(nil)
	u := tradeUpdate(501, 100.5)

	if _, err := store.ApplyUpdate(u); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first, err := store.Snapshot(501)
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	if _, err := store.ApplyUpdate(u); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second, err := store.Snapshot(501)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	// Only the update timestamp may move.
	first.UpdatedAt = time.Time{}
	second.UpdatedAt = time.Time{}
	if first != second {
		t.Errorf("re-applied update changed snapshot:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestApplyUpdate_SequenceMonotonicPerToken(t *testing.T) {
	store := NewPriceStore(nil)

	var last uint64
	for i := 0; i < 10; i++ {
		ev, err := store.ApplyUpdate(tradeUpdate(7, float64(i)))
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if ev.Seq <= last {
			t.Fatalf("seq not increasing: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
}

func TestApplyUpdate_RejectsUnknownToken(t *testing.T) {
	store := NewPriceStore(func(token uint32) bool { return token == 1 })

	if _, err := store.ApplyUpdate(tradeUpdate(2, 100)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := store.Snapshot(2); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken on snapshot, got %v", err)
	}
	if store.Rejected() != 1 {
		t.Errorf("rejected = %d, want 1", store.Rejected())
	}

	if _, err := store.ApplyUpdate(tradeUpdate(1, 100)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if store.Applied() != 1 {
		t.Errorf("applied = %d, want 1", store.Applied())
	}
}

func TestApplyUpdate_RejectsEmptyKind(t *testing.T) {
	store := NewPriceStore(nil)

	_, err := store.ApplyUpdate(models.Update{Token: 1})
	if !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestSnapshot_NoDataBeforeFirstUpdate(t *testing.T) {
	store := NewPriceStore(func(token uint32) bool { return true })

	if _, err := store.Snapshot(9); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	// A zero price after an update is data, not absence of data.
	if _, err := store.ApplyUpdate(tradeUpdate(9, 0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	state, err := store.Snapshot(9)
	if err != nil {
		t.Fatalf("expected data after update, got %v", err)
	}
	if state.LastPrice != 0 {
		t.Errorf("last_price = %v, want 0", state.LastPrice)
	}
}

func TestApplyUpdate_ConcurrentTokens(t *testing.T) {
	store := NewPriceStore(nil)

	var wg sync.WaitGroup
	for token := uint32(1); token <= 50; token++ {
		wg.Add(1)
		go func(token uint32) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := store.ApplyUpdate(tradeUpdate(token, float64(i))); err != nil {
					t.Errorf("token %d: %v", token, err)
					return
				}
			}
		}(token)
	}
	wg.Wait()

	if store.Applied() != 50*100 {
		t.Errorf("applied = %d, want %d", store.Applied(), 50*100)
	}
	for token := uint32(1); token <= 50; token++ {
		state, err := store.Snapshot(token)
		if err != nil {
			t.Fatalf("snapshot %d: %v", token, err)
		}
		if state.LastPrice != 99 {
			t.Errorf("token %d: last_price = %v, want 99", token, state.LastPrice)
		}
	}
}
