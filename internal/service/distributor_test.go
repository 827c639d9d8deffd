package service

import (
	"context"
	"testing"
	"time"

	"github.com/marketbots/marketcore/internal/models"
)

func TestDistributor_TokenSubscriptionFilters(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	sub := d.Subscribe(10, 1)
	defer d.Unsubscribe(sub)

	if _, err := d.Ingest(tradeUpdate(1, 100)); err != nil {
		t.Fatalf("ingest token 1: %v", err)
	}
	if _, err := d.Ingest(tradeUpdate(2, 200)); err != nil {
		t.Fatalf("ingest token 2: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Token != 1 {
			t.Errorf("expected token 1, got %d", ev.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("received event for unsubscribed token %d", ev.Token)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDistributor_WildcardReceivesAll(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	sub := d.Subscribe(10)
	defer d.Unsubscribe(sub)

	if _, err := d.Ingest(tradeUpdate(1, 100)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := d.Ingest(tradeUpdate(2, 200)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	seen := make(map[uint32]bool)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			seen[ev.Token] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !seen[1] || !seen[2] {
		t.Errorf("wildcard missed tokens: %v", seen)
	}
}

func TestDistributor_PerTokenOrdering(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	sub := d.Subscribe(100, 5)
	defer d.Unsubscribe(sub)

	for i := 0; i < 50; i++ {
		if _, err := d.Ingest(tradeUpdate(5, float64(i))); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	var lastSeq uint64
	for i := 0; i < 50; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Seq <= lastSeq {
				t.Fatalf("event %d out of order: seq %d after %d", i, ev.Seq, lastSeq)
			}
			lastSeq = ev.Seq
			if ev.Trade.LastPrice != float64(i) {
				t.Fatalf("event %d: price %v, want %v", i, ev.Trade.LastPrice, float64(i))
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestDistributor_CoalescesWhenConsumerLags(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	sub := d.Subscribe(1, 8)
	defer d.Unsubscribe(sub)

	// First fills the channel, the rest coalesce latest-wins in pending.
	for i := 1; i <= 5; i++ {
		if _, err := d.Ingest(tradeUpdate(8, float64(i))); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	select {
	case ev := <-sub.Events():
		if ev.Trade.LastPrice != 1 {
			t.Errorf("first event price %v, want 1", ev.Trade.LastPrice)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}

	// The background flusher drains the pending slot; only the latest
	// coalesced value survives.
	select {
	case ev := <-sub.Events():
		if ev.Trade.LastPrice != 5 {
			t.Errorf("coalesced event price %v, want 5", ev.Trade.LastPrice)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coalesced event")
	}

	if sub.Coalesced() == 0 {
		t.Error("expected coalesced counter to advance")
	}
}

func TestDistributor_DropsUnknownToken(t *testing.T) {
	d := NewDistributor(NewPriceStore(func(token uint32) bool { return token == 1 }))
	sub := d.Subscribe(10)
	defer d.Unsubscribe(sub)

	if _, err := d.Ingest(tradeUpdate(99, 100)); err == nil {
		t.Fatal("expected error for unknown token")
	}
	if _, err := d.Ingest(tradeUpdate(1, 100)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	// The bad update never reaches subscribers; the good one does.
	select {
	case ev := <-sub.Events():
		if ev.Token != 1 {
			t.Errorf("expected token 1, got %d", ev.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	if d.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", d.Dropped())
	}
}

func TestDistributor_FlushAfterUnsubscribeDoesNotPanic(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	sub := d.Subscribe(1, 8)

	// Fill the channel and leave one event queued in pending.
	if _, err := d.Ingest(tradeUpdate(8, 1)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := d.Ingest(tradeUpdate(8, 2)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	d.Unsubscribe(sub)

	// The background flusher may hold a subscriber snapshot taken before the
	// unsubscribe. Flushing the now-closed subscription must not send on the
	// closed channel.
	sub.mu.Lock()
	drained := sub.flushLocked()
	sub.mu.Unlock()
	if drained {
		t.Error("flush on a closed subscription reported progress")
	}
}

func TestDistributor_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDistributor(NewPriceStore(nil))
	sub := d.Subscribe(10, 3)
	d.Unsubscribe(sub)

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Ingest after unsubscribe must not panic or deliver.
	if _, err := d.Ingest(tradeUpdate(3, 100)); err != nil {
		t.Fatalf("ingest after unsubscribe: %v", err)
	}

	var ev models.ChangeEvent
	select {
	case ev = <-sub.Events():
	default:
	}
	if ev.Token != 0 {
		t.Errorf("unexpected delivery after unsubscribe: %+v", ev)
	}
}
