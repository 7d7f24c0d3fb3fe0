package channel

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
	"gitlab.com/warrant1/connector/internal/store"
	"gitlab.com/warrant1/connector/internal/telemetry"
	"gitlab.com/warrant1/connector/internal/wallet"
)

const testAgentID = "agent-1"

type fakeAdapter struct {
	family    ledger.Family
	openCalls int
	nextID    byte
}

func (f *fakeAdapter) Family() ledger.Family { return f.family }

func (f *fakeAdapter) Open(ctx context.Context, params ledger.OpenParams) (proof.ChannelID, *ledger.Receipt, error) {
	f.openCalls++
	f.nextID++
	return proof.ChannelID{f.nextID}, &ledger.Receipt{TxID: "0xabc", Block: 1}, nil
}

func (f *fakeAdapter) SetTotalDeposit(ctx context.Context, channelID proof.ChannelID, newTotal *big.Int) (*ledger.Receipt, error) {
	return &ledger.Receipt{}, nil
}

func (f *fakeAdapter) Close(ctx context.Context, channelID proof.ChannelID, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	return &ledger.Receipt{TxID: "close"}, nil
}

func (f *fakeAdapter) UpdateNonClosingBalanceProof(ctx context.Context, channelID proof.ChannelID, closing, nonClosing proof.BalanceProof) (*ledger.Receipt, error) {
	return &ledger.Receipt{}, nil
}

func (f *fakeAdapter) Settle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	return &ledger.Receipt{TxID: "settle"}, nil
}

func (f *fakeAdapter) CooperativeSettle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	return &ledger.Receipt{}, nil
}

func (f *fakeAdapter) Withdraw(ctx context.Context, channelID proof.ChannelID, withdraw proof.WithdrawProof) (*ledger.Receipt, error) {
	return &ledger.Receipt{}, nil
}

func (f *fakeAdapter) ForceCloseExpired(ctx context.Context, channelID proof.ChannelID) (*ledger.Receipt, error) {
	return &ledger.Receipt{}, nil
}

func (f *fakeAdapter) State(ctx context.Context, channelID proof.ChannelID) (ledger.OnChainChannelState, error) {
	return ledger.OnChainChannelState{}, nil
}

func (f *fakeAdapter) Watch(ctx context.Context, channelID proof.ChannelID) (<-chan ledger.Event, error) {
	ch := make(chan ledger.Event)
	close(ch)
	return ch, nil
}

type fakeSigner struct{}

func (fakeSigner) SignBalanceProof(ctx context.Context, agentID string, family ledger.Family, p proof.BalanceProof) ([]byte, error) {
	return []byte{0x01, 0x02}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeAdapter) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	adapter := &fakeAdapter{family: ledger.FamilyEVM}
	mgr := NewManager(
		st,
		map[ledger.Family]ledger.Adapter{ledger.FamilyEVM: adapter},
		fakeSigner{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		nil,
		nil,
		nil,
		nil,
		RebalanceConfig{},
	)
	return mgr, adapter
}

func TestOpenChannelPersists(t *testing.T) {
	mgr, adapter := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		PeerAddress:    "peer-addr",
		Token:          "USDC",
		InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.openCalls)

	cs, err := mgr.store.GetForAgent(ctx, testAgentID, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, cs.Status)
}

func TestApplyPaymentIncrementsNonce(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)

	p1, err := mgr.ApplyPayment(ctx, testAgentID, id, ledger.FamilyEVM, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, 0, p1.Nonce.Cmp(big.NewInt(1)))

	p2, err := mgr.ApplyPayment(ctx, testAgentID, id, ledger.FamilyEVM, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, 0, p2.Nonce.Cmp(big.NewInt(2)))
	assert.Equal(t, 0, p2.TransferredAmount.Cmp(big.NewInt(15)))
}

func TestApplyPaymentRejectedWhenWalletNotActive(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	adapter := &fakeAdapter{family: ledger.FamilyEVM}
	mgr := NewManager(
		st,
		map[ledger.Family]ledger.Adapter{ledger.FamilyEVM: adapter},
		fakeSigner{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		nil,
		notActiveWalletGate{},
		nil,
		nil,
		RebalanceConfig{},
	)
	ctx := context.Background()

	_, err = mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWalletNotActive, e.Kind)
}

type notActiveWalletGate struct{}

func (notActiveWalletGate) State(ctx context.Context, agentID string) (wallet.State, error) {
	return wallet.StateSuspended, nil
}

func (notActiveWalletGate) RecordTransaction(ctx context.Context, agentID, token string, amount *big.Int) error {
	return nil
}

func TestReceivePeerProofRejectsNonIncreasingNonce(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)

	first := proof.BalanceProof{ChannelID: id, Nonce: big.NewInt(5), TransferredAmount: big.NewInt(50), LockedAmount: big.NewInt(0)}
	require.NoError(t, mgr.ReceivePeerProof(ctx, id, first))

	stale := proof.BalanceProof{ChannelID: id, Nonce: big.NewInt(5), TransferredAmount: big.NewInt(60), LockedAmount: big.NewInt(0)}
	err = mgr.ReceivePeerProof(ctx, id, stale)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindNonceNotMonotonic, e.Kind)
}

func TestSettlePublishesPaymentChannelSettledEvent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := telemetry.NewBus(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := bus.Subscribe(telemetry.KindPaymentChannelSettled)
	defer sub.Close()

	adapter := &fakeAdapter{family: ledger.FamilyEVM}
	mgr := NewManager(
		st,
		map[ledger.Family]ledger.Adapter{ledger.FamilyEVM: adapter},
		fakeSigner{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		bus,
		nil,
		nil,
		nil,
		RebalanceConfig{},
	)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{Token: "USDC", InitialDeposit: big.NewInt(1000)})
	require.NoError(t, err)
	_, err = mgr.ApplyPayment(ctx, testAgentID, id, ledger.FamilyEVM, big.NewInt(10))
	require.NoError(t, err)

	_, err = mgr.Settle(ctx, id, proof.BalanceProof{ChannelID: id, Nonce: big.NewInt(1), TransferredAmount: big.NewInt(10), LockedAmount: big.NewInt(0)})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "true", ev.Attrs["success"])
		assert.Equal(t, "peer-1", ev.Attrs["peer_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PAYMENT_CHANNEL_SETTLED event")
	}
}

func TestReceivePeerProofRejectsDecreasingTransferredAmount(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)

	first := proof.BalanceProof{ChannelID: id, Nonce: big.NewInt(1), TransferredAmount: big.NewInt(100), LockedAmount: big.NewInt(0)}
	require.NoError(t, mgr.ReceivePeerProof(ctx, id, first))

	regressed := proof.BalanceProof{ChannelID: id, Nonce: big.NewInt(2), TransferredAmount: big.NewInt(50), LockedAmount: big.NewInt(0)}
	err = mgr.ReceivePeerProof(ctx, id, regressed)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindTransferredExceedsDeposit, e.Kind)
}

func TestGetAgentChannelsFallsBackToStoreBeforeRecovery(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)

	channels, err := mgr.GetAgentChannels(ctx, testAgentID)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, id, channels[0].ChannelID)
}

func TestLoadActiveChannelsPrimesCache(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.OpenChannel(ctx, testAgentID, ledger.FamilyEVM, "peer-1", ledger.OpenParams{
		Token: "USDC", InitialDeposit: big.NewInt(1000),
	})
	require.NoError(t, err)

	require.NoError(t, mgr.LoadActiveChannels(ctx))

	channels, err := mgr.GetAgentChannels(ctx, testAgentID)
	require.NoError(t, err)
	require.Len(t, channels, 1)
}
