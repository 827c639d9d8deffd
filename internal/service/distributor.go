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

const (
	ingestStripes      = 1024
	defaultSubBuffer   = 4096
	pendingFlushPeriod = 5 * time.Millisecond
)

// Subscription is one registered consumer of ChangeEvents. Events arrive on
// Events() in ingest order per token. When the channel is full, events are
// coalesced latest-wins per token instead of growing an unbounded queue.
type Subscription struct {
	ch     chan models.ChangeEvent
	tokens map[uint32]struct{} // nil means wildcard

	mu      sync.Mutex
	pending map[uint32]models.ChangeEvent
	order   []uint32
	closed  bool

	coalesced atomic.Uint64
}

// Events returns the delivery channel. It is closed on Unsubscribe.
func (sub *Subscription) Events() <-chan models.ChangeEvent { return sub.ch }

// Coalesced returns how many deliveries were merged latest-wins because the
// consumer lagged.
func (sub *Subscription) Coalesced() uint64 { return sub.coalesced.Load() }

// flushLocked moves pending events onto the channel in arrival order.
// Pending events always drain before any direct send so per-token order is
// kept even across a congestion episode. Caller holds sub.mu. The closed
// check guards the background flusher, which may hold a subscriber snapshot
// taken before an Unsubscribe closed the channel.
func (sub *Subscription) flushLocked() bool {
	if sub.closed {
		return false
	}
	for len(sub.order) > 0 {
		token := sub.order[0]
		ev, ok := sub.pending[token]
		if !ok {
			sub.order = sub.order[1:]
			continue
		}
		select {
		case sub.ch <- ev:
			delete(sub.pending, token)
			sub.order = sub.order[1:]
		default:
			return false
		}
	}
	return true
}

func (sub *Subscription) deliver(ev models.ChangeEvent) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	if sub.flushLocked() {
		select {
		case sub.ch <- ev:
			return
		default:
		}
	}
	// Channel congested: latest value wins per token.
	if _, queued := sub.pending[ev.Token]; !queued {
		sub.order = append(sub.order, ev.Token)
	} else {
		sub.coalesced.Add(1)
	}
	sub.pending[ev.Token] = ev
}

// Distributor applies decoded updates to the price store and fans the
// resulting kind-scoped ChangeEvents out to subscribers. Apply and delivery
// for one token run under the same stripe lock, which preserves per-token
// ordering end to end; different tokens rarely share a stripe.
type Distributor struct {
	store   *PriceStore
	stripes [ingestStripes]sync.Mutex

	mu       sync.RWMutex
	wildcard map[*Subscription]struct{}
	byToken  map[uint32]map[*Subscription]struct{}

	dropped atomic.Uint64
}

// NewDistributor creates a distributor over the given price store.
func NewDistributor(store *PriceStore) *Distributor {
	return &Distributor{
		store:    store,
		wildcard: make(map[*Subscription]struct{}),
		byToken:  make(map[uint32]map[*Subscription]struct{}),
	}
}

// Start launches the background flusher that drains coalesced events when
// ingestion goes quiet. It returns when ctx is cancelled.
func (d *Distributor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pendingFlushPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.flushPending()
			}
		}
	}()
}

func (d *Distributor) flushPending() {
	d.mu.RLock()
	subs := make([]*Subscription, 0, len(d.wildcard)+len(d.byToken))
	for sub := range d.wildcard {
		subs = append(subs, sub)
	}
	for _, set := range d.byToken {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	d.mu.RUnlock()
	for _, sub := range subs {
		sub.mu.Lock()
		sub.flushLocked()
		sub.mu.Unlock()
	}
}

// Subscribe registers a consumer for the given tokens, or for all tokens
// when none are given. buffer <= 0 selects the default channel capacity.
func (d *Distributor) Subscribe(buffer int, tokens ...uint32) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubBuffer
	}
	sub := &Subscription{
		ch:      make(chan models.ChangeEvent, buffer),
		pending: make(map[uint32]models.ChangeEvent),
	}
	if len(tokens) > 0 {
		sub.tokens = make(map[uint32]struct{}, len(tokens))
		for _, t := range tokens {
			sub.tokens[t] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if sub.tokens == nil {
		d.wildcard[sub] = struct{}{}
		return sub
	}
	for t := range sub.tokens {
		set := d.byToken[t]
		if set == nil {
			set = make(map[*Subscription]struct{})
			d.byToken[t] = set
		}
		set[sub] = struct{}{}
	}
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (d *Distributor) Unsubscribe(sub *Subscription) {
	d.mu.Lock()
	delete(d.wildcard, sub)
	for t := range sub.tokens {
		if set := d.byToken[t]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(d.byToken, t)
			}
		}
	}
	d.mu.Unlock()

	sub.mu.Lock()
	sub.closed = true
	close(sub.ch)
	sub.mu.Unlock()
}

// Ingest applies one decoded update and delivers the resulting ChangeEvent.
// Unknown-token updates are dropped and counted; they never stop delivery
// for other tokens.
func (d *Distributor) Ingest(u models.Update) (models.ChangeEvent, error) {
	stripe := &d.stripes[u.Token%ingestStripes]
	stripe.Lock()
	defer stripe.Unlock()

	ev, err := d.store.ApplyUpdate(u)
	if err != nil {
		d.dropped.Add(1)
		zaplogger.Debug("update dropped", zaplogger.Fields{
			"token": u.Token,
			"kind":  u.Kind.String(),
			"error": err.Error(),
		})
		return models.ChangeEvent{}, err
	}

	d.mu.RLock()
	for sub := range d.wildcard {
		sub.deliver(ev)
	}
	if set := d.byToken[ev.Token]; set != nil {
		for sub := range set {
			sub.deliver(ev)
		}
	}
	d.mu.RUnlock()
	return ev, nil
}

// Dropped returns the number of updates rejected on ingest.
func (d *Distributor) Dropped() uint64 { return d.dropped.Load() }
