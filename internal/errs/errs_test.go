package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(KindLedgerUnavailable, "evm rpc", cause)

	assert.True(t, errors.Is(err, Of(KindLedgerUnavailable)))
	assert.False(t, errors.Is(err, Of(KindTimeout)))
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(KindPersistenceFailure, "", cause)

	assert.ErrorIs(t, err, cause)
}

func TestAsExtractsKindAndReason(t *testing.T) {
	err := New(KindUnsupported, "chain=solana")

	got, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, KindUnsupported, got.Kind)
	assert.Equal(t, "chain=solana", got.Reason)
}

func TestAsThroughWrappedFmtError(t *testing.T) {
	inner := New(KindChannelNotFound, "chan-1")
	outer := fmt.Errorf("open_channel: %w", inner)

	got, ok := As(outer)
	assert.True(t, ok)
	assert.Equal(t, KindChannelNotFound, got.Kind)
}
