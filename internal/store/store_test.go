package store

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testChannelState(id byte) ChannelState {
	return ChannelState{
		ChannelID: proof.ChannelID{id},
		Family:    ledger.FamilyEVM,
		PeerID:    "peer-1",
		Status:    StatusActive,
		Deposit:   "1000",
		LatestProof: &proof.BalanceProof{
			ChannelID:         proof.ChannelID{id},
			Nonce:             big.NewInt(1),
			TransferredAmount: big.NewInt(100),
			LockedAmount:      big.NewInt(0),
		},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cs := testChannelState(0x01)

	require.NoError(t, s.Put(ctx, cs))

	got, err := s.Get(ctx, cs.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, cs.PeerID, got.PeerID)
	assert.Equal(t, cs.Status, got.Status)
	require.NotNil(t, got.LatestProof)
	assert.Equal(t, 0, cs.LatestProof.Nonce.Cmp(got.LatestProof.Nonce))
}

func TestGetMissingChannelReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), proof.ChannelID{0xff})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindChannelNotFound, e.Kind)
}

func TestListReturnsAllChannels(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testChannelState(0x01)))
	require.NoError(t, s.Put(ctx, testChannelState(0x02)))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendProofHistoryAcceptsIncreasingNonces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	channelID := proof.ChannelID{0x09}

	for nonce := int64(1); nonce <= 3; nonce++ {
		p := proof.BalanceProof{
			ChannelID:         channelID,
			Nonce:             big.NewInt(nonce),
			TransferredAmount: big.NewInt(nonce * 10),
			LockedAmount:      big.NewInt(0),
		}
		require.NoError(t, s.AppendProofHistory(ctx, channelID, p))
	}
}
