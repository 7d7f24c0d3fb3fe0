package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/telemetry"
)

func newTestMonitor(t *testing.T) (*telemetry.Bus, *Monitor) {
	t.Helper()
	bus := telemetry.NewBus(8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mon := NewMonitor(bus, decimal.NewFromInt(500), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return bus, mon
}

func runMonitor(t *testing.T, mon *Monitor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = mon.Run(ctx) }()
	return cancel
}

func TestAccountBalanceAboveThresholdTriggersSettlement(t *testing.T) {
	bus, mon := newTestMonitor(t)
	cancel := runMonitor(t, mon)
	defer cancel()

	triggered := bus.Subscribe(telemetry.KindSettlementTriggered)
	defer triggered.Close()

	bus.Publish(telemetry.Event{
		Kind:  telemetry.KindAccountBalance,
		Attrs: telemetry.Attr("peer_id", "peer-1", "balance", "600", "settled_up_to", "0"),
	})

	select {
	case ev := <-triggered.Events():
		assert.Equal(t, "peer-1", ev.Attrs["peer_id"])
		assert.Equal(t, "100", ev.Attrs["exceeds_by"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SETTLEMENT_TRIGGERED")
	}

	require.Eventually(t, func() bool {
		return mon.Phase("peer-1") == PhaseSettlementPending
	}, time.Second, 10*time.Millisecond)
}

func TestAccountBalanceBelowThresholdStaysIdle(t *testing.T) {
	bus, mon := newTestMonitor(t)
	cancel := runMonitor(t, mon)
	defer cancel()

	bus.Publish(telemetry.Event{
		Kind:  telemetry.KindAccountBalance,
		Attrs: telemetry.Attr("peer_id", "peer-1", "balance", "10", "settled_up_to", "0"),
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, PhaseIdle, mon.Phase("peer-1"))
}

func TestSettlementOutcomeReturnsToIdleAndPublishesCompleted(t *testing.T) {
	bus, mon := newTestMonitor(t)
	cancel := runMonitor(t, mon)
	defer cancel()

	completed := bus.Subscribe(telemetry.KindSettlementCompleted)
	defer completed.Close()

	bus.Publish(telemetry.Event{
		Kind:  telemetry.KindAccountBalance,
		Attrs: telemetry.Attr("peer_id", "peer-1", "balance", "600", "settled_up_to", "0"),
	})
	require.Eventually(t, func() bool {
		return mon.Phase("peer-1") == PhaseSettlementPending
	}, time.Second, 10*time.Millisecond)

	bus.Publish(telemetry.Event{
		Kind:  telemetry.KindPaymentChannelSettled,
		Attrs: telemetry.Attr("peer_id", "peer-1", "success", "true"),
	})

	select {
	case ev := <-completed.Events():
		assert.Equal(t, "true", ev.Attrs["success"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SETTLEMENT_COMPLETED")
	}

	require.Eventually(t, func() bool {
		return mon.Phase("peer-1") == PhaseIdle
	}, time.Second, 10*time.Millisecond)
}

func TestDuplicateTriggersAreCoalesced(t *testing.T) {
	bus, mon := newTestMonitor(t)
	cancel := runMonitor(t, mon)
	defer cancel()

	triggered := bus.Subscribe(telemetry.KindSettlementTriggered)
	defer triggered.Close()

	for i := 0; i < 3; i++ {
		bus.Publish(telemetry.Event{
			Kind:  telemetry.KindAccountBalance,
			Attrs: telemetry.Attr("peer_id", "peer-1", "balance", "600", "settled_up_to", "0"),
		})
	}

	select {
	case <-triggered.Events():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first SETTLEMENT_TRIGGERED")
	}

	select {
	case ev := <-triggered.Events():
		t.Fatalf("unexpected duplicate trigger: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
