// Package telemetry implements the Telemetry Bus (C10): a non-blocking,
// best-effort publish/subscribe fan-out of lifecycle events. Publishers
// never block on a slow or full subscriber; a subscriber that falls behind
// simply misses events rather than stalling the producing operation.
package telemetry

import (
	"log/slog"
	"sync"
)

// Kind names one of the fixed event schemas.
type Kind string

const (
	KindAgentChannelOpened      Kind = "AGENT_CHANNEL_OPENED"
	KindAgentChannelPaymentSent Kind = "AGENT_CHANNEL_PAYMENT_SENT"
	KindAgentChannelClosed      Kind = "AGENT_CHANNEL_CLOSED"
	KindPaymentChannelOpened    Kind = "PAYMENT_CHANNEL_OPENED"
	KindPaymentChannelBalanceUpd Kind = "PAYMENT_CHANNEL_BALANCE_UPDATE"
	KindPaymentChannelSettled   Kind = "PAYMENT_CHANNEL_SETTLED"
	KindAccountBalance          Kind = "ACCOUNT_BALANCE"
	KindSettlementTriggered     Kind = "SETTLEMENT_TRIGGERED"
	KindSettlementCompleted     Kind = "SETTLEMENT_COMPLETED"
	KindAgentWalletStateChanged Kind = "AGENT_WALLET_STATE_CHANGED"
)

// Event is one published telemetry record. Attrs carries schema-specific
// fields as decimal strings for amounts, per the wire convention the rest
// of the connector uses for off-chain balances.
type Event struct {
	Kind  Kind
	Attrs map[string]string
}

// Attr is a constructor convenience for building an Event's Attrs map
// inline at the call site.
func Attr(pairs ...string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

// subscriber is one registered consumer: a buffered channel plus an
// optional filter restricting which kinds it receives.
type subscriber struct {
	id    int
	ch    chan Event
	kinds map[Kind]struct{}
}

// Bus is the Telemetry Bus. The zero value is not usable; construct with
// NewBus.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]*subscriber
	nextID     int
	bufferSize int
	logger     *slog.Logger
}

// NewBus returns a Bus whose subscriber queues hold bufferSize events
// before publish starts dropping for that subscriber.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Bus{
		subs:       make(map[int]*subscriber),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscription is the handle returned by Subscribe; read Events until the
// caller is done, then call Close to deregister.
type Subscription struct {
	bus *Bus
	id  int
	ch  <-chan Event
}

// Events returns the channel this subscription receives events on.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close deregisters the subscription and releases its buffer.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a new consumer. When kinds is non-empty, only events
// of those kinds are delivered; an empty kinds list subscribes to
// everything.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	var filter map[Kind]struct{}
	if len(kinds) > 0 {
		filter = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			filter[k] = struct{}{}
		}
	}
	sub := &subscriber{id: id, ch: make(chan Event, b.bufferSize), kinds: filter}
	b.subs[id] = sub
	return &Subscription{bus: b, id: id, ch: sub.ch}
}

// Publish fans ev out to every matching subscriber without blocking. A
// subscriber whose queue is full has the event dropped for it and the drop
// logged; the publishing goroutine never waits.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[ev.Kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			if b.logger != nil {
				b.logger.Warn("telemetry subscriber queue full, dropping event", "kind", ev.Kind, "subscriber", sub.id)
			}
		}
	}
}
