// Package settlement implements the Settlement Monitor (C7): a pure
// telemetry-bus consumer that watches ACCOUNT_BALANCE events and drives its
// own IDLE -> SETTLEMENT_PENDING -> SETTLEMENT_IN_PROGRESS -> IDLE state
// machine per peer, entirely through bus events. It holds no reference to
// the Account Manager or the Channel Manager, so the three packages never
// form an import cycle: the Account Manager publishes balances, the
// Channel Manager publishes settlement/close outcomes, and this package
// only ever listens.
package settlement

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"gitlab.com/warrant1/connector/internal/telemetry"
)

// Phase is the Settlement Monitor's own state, one instance per peer.
type Phase string

const (
	PhaseIdle               Phase = "IDLE"
	PhaseSettlementPending  Phase = "SETTLEMENT_PENDING"
	PhaseSettlementInFlight Phase = "SETTLEMENT_IN_PROGRESS"
)

// Monitor is the Settlement Monitor. Construct with NewMonitor and run it
// with Run in its own goroutine; it terminates when ctx is cancelled.
type Monitor struct {
	bus       *telemetry.Bus
	threshold decimal.Decimal
	logger    *slog.Logger

	mu     sync.Mutex
	phases map[string]Phase
}

// NewMonitor constructs a Monitor that triggers settlement once a peer's
// unsettled balance reaches threshold.
func NewMonitor(bus *telemetry.Bus, threshold decimal.Decimal, logger *slog.Logger) *Monitor {
	return &Monitor{
		bus:       bus,
		threshold: threshold,
		logger:    logger,
		phases:    make(map[string]Phase),
	}
}

// Phase returns peerID's current phase (IDLE if never observed).
func (m *Monitor) Phase(peerID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.phases[peerID]; ok {
		return p
	}
	return PhaseIdle
}

// Run subscribes to the bus and processes events until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	sub := m.bus.Subscribe(
		telemetry.KindAccountBalance,
		telemetry.KindPaymentChannelSettled,
		telemetry.KindAgentChannelClosed,
	)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.handle(ev)
		}
	}
}

func (m *Monitor) handle(ev telemetry.Event) {
	switch ev.Kind {
	case telemetry.KindAccountBalance:
		m.handleAccountBalance(ev)
	case telemetry.KindPaymentChannelSettled, telemetry.KindAgentChannelClosed:
		m.handleSettlementOutcome(ev)
	}
}

// handleAccountBalance checks the trigger condition and, for a peer
// currently IDLE, escalates to SETTLEMENT_PENDING and publishes
// SETTLEMENT_TRIGGERED. A peer already pending or in flight is left alone
// — duplicate triggers are coalesced, per the at-most-one-outstanding-
// trigger rule.
func (m *Monitor) handleAccountBalance(ev telemetry.Event) {
	peerID := ev.Attrs["peer_id"]
	if peerID == "" {
		return
	}
	balance, err := decimal.NewFromString(ev.Attrs["balance"])
	if err != nil {
		m.logger.Warn("discarding ACCOUNT_BALANCE event with unparseable balance", "peer", peerID, "error", err)
		return
	}
	settled, err := decimal.NewFromString(ev.Attrs["settled_up_to"])
	if err != nil {
		settled = decimal.Zero
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phases[peerID] != "" && m.phases[peerID] != PhaseIdle {
		return
	}

	unsettled := balance.Sub(settled)
	if unsettled.Abs().LessThan(m.threshold) {
		return
	}

	m.phases[peerID] = PhaseSettlementPending
	m.logger.Info("settlement triggered", "peer", peerID, "exceeds_by", unsettled.Abs().Sub(m.threshold).String())
	m.bus.Publish(telemetry.Event{
		Kind: telemetry.KindSettlementTriggered,
		Attrs: telemetry.Attr(
			"peer_id", peerID,
			"exceeds_by", unsettled.Abs().Sub(m.threshold).String(),
		),
	})
}

// handleSettlementOutcome observes the Channel Manager's own settlement or
// close events. A peer found PENDING is first promoted to IN_PROGRESS to
// reflect that the corresponding send_payment/close_channel has begun;
// since the observed event already carries the outcome, the monitor
// immediately completes the cycle and returns the peer to IDLE.
func (m *Monitor) handleSettlementOutcome(ev telemetry.Event) {
	peerID := ev.Attrs["peer_id"]
	if peerID == "" {
		return
	}

	m.mu.Lock()
	phase := m.phases[peerID]
	if phase != PhaseSettlementPending && phase != PhaseSettlementInFlight {
		m.mu.Unlock()
		return
	}
	m.phases[peerID] = PhaseSettlementInFlight
	m.mu.Unlock()

	success := ev.Attrs["success"] != "false"
	attrs := []string{"peer_id", peerID, "success", boolString(success)}
	if !success {
		attrs = append(attrs, "error_message", ev.Attrs["error_message"])
	}
	m.bus.Publish(telemetry.Event{Kind: telemetry.KindSettlementCompleted, Attrs: telemetry.Attr(attrs...)})

	m.mu.Lock()
	m.phases[peerID] = PhaseIdle
	m.mu.Unlock()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
