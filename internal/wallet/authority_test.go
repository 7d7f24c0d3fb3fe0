package wallet

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/telemetry"
)

func TestCreateWalletStartsPending(t *testing.T) {
	a := NewAuthority(nil, nil)
	require.NoError(t, a.CreateWallet(context.Background(), "agent-1"))

	state, err := a.State(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
}

func TestConfirmFundingActivates(t *testing.T) {
	a := NewAuthority(nil, nil)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))
	require.NoError(t, a.ConfirmFunding(ctx, "agent-1"))

	state, err := a.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
}

func TestSuspendAndReactivate(t *testing.T) {
	a := NewAuthority(nil, nil)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))
	require.NoError(t, a.ConfirmFunding(ctx, "agent-1"))

	require.NoError(t, a.Suspend(ctx, "agent-1", "credit limit breach"))
	state, err := a.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, state)

	require.NoError(t, a.Reactivate(ctx, "agent-1"))
	state, err = a.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
}

func TestTransitionFromWrongStateRejected(t *testing.T) {
	a := NewAuthority(nil, nil)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))

	err := a.Suspend(ctx, "agent-1", "n/a")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWalletNotActive, e.Kind)
}

func TestArchiveRemovesFromActiveCacheButKeepsRecord(t *testing.T) {
	a := NewAuthority(nil, nil)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))
	require.NoError(t, a.ConfirmFunding(ctx, "agent-1"))
	require.NoError(t, a.Archive(ctx, "agent-1"))

	state, err := a.State(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, StateArchived, state)

	rec, ok := a.ArchivedRecord("agent-1")
	require.True(t, ok)
	assert.Equal(t, StateArchived, rec.State)
}

func TestRecordTransactionAccumulatesVolume(t *testing.T) {
	a := NewAuthority(nil, nil)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))

	require.NoError(t, a.RecordTransaction(ctx, "agent-1", "USDC", big.NewInt(100)))
	require.NoError(t, a.RecordTransaction(ctx, "agent-1", "USDC", big.NewInt(50)))

	a.mu.RLock()
	rec := a.active["agent-1"]
	a.mu.RUnlock()
	assert.Equal(t, uint64(2), rec.TxCount)
	assert.Equal(t, 0, rec.VolumeByToken["USDC"].Cmp(big.NewInt(150)))
}

func TestStateTransitionsPublishAgentWalletStateChanged(t *testing.T) {
	bus := telemetry.NewBus(8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := bus.Subscribe(telemetry.KindAgentWalletStateChanged)
	defer sub.Close()

	a := NewAuthority(nil, bus)
	ctx := context.Background()
	require.NoError(t, a.CreateWallet(ctx, "agent-1"))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "agent-1", ev.Attrs["agent_id"])
		assert.Equal(t, string(StatePending), ev.Attrs["state"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AGENT_WALLET_STATE_CHANGED")
	}
}
