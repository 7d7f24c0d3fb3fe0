package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/errs"
)

func TestSendBalanceProofDeliversToRegisteredHandler(t *testing.T) {
	lb := NewLoopback()
	var gotFrom string
	var gotBytes []byte
	lb.Register("peer-1", func(ctx context.Context, fromPeerID string, proofBytes, signature []byte) (bool, string, error) {
		gotFrom = fromPeerID
		gotBytes = proofBytes
		return true, "", nil
	})

	ack, err := lb.SendBalanceProof(context.Background(), "peer-1", []byte("proof"), []byte("sig"))
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.RequestID)
	assert.Equal(t, "peer-1", gotFrom)
	assert.Equal(t, []byte("proof"), gotBytes)
}

func TestSendBalanceProofToUnregisteredPeerFails(t *testing.T) {
	lb := NewLoopback()
	_, err := lb.SendBalanceProof(context.Background(), "ghost", nil, nil)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindPeerUnknown, e.Kind)
}

func TestSendBalanceProofReturnsRejectionReason(t *testing.T) {
	lb := NewLoopback()
	lb.Register("peer-1", func(ctx context.Context, fromPeerID string, proofBytes, signature []byte) (bool, string, error) {
		return false, "nonce not monotonic", nil
	})

	ack, err := lb.SendBalanceProof(context.Background(), "peer-1", []byte("proof"), []byte("sig"))
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
	assert.Equal(t, "nonce not monotonic", ack.Reason)
}

func TestDeregisterRemovesHandler(t *testing.T) {
	lb := NewLoopback()
	lb.Register("peer-1", func(ctx context.Context, fromPeerID string, proofBytes, signature []byte) (bool, string, error) {
		return true, "", nil
	})
	lb.Deregister("peer-1")

	_, err := lb.SendBalanceProof(context.Background(), "peer-1", nil, nil)
	require.Error(t, err)
}
