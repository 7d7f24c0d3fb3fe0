package signer

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
)

func testSeed() string {
	return "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
}

func testDomain() proof.Domain {
	return proof.Domain{Name: "connector", Version: "1", ChainID: big.NewInt(1)}
}

func TestDifferentAgentsDeriveDifferentEVMAddresses(t *testing.T) {
	svc := NewService(testSeed(), testDomain())
	ctx := context.Background()

	addr1, err := svc.ForAgent("agent-1").EVMAddress(ctx)
	require.NoError(t, err)
	addr2, err := svc.ForAgent("agent-2").EVMAddress(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
}

func TestSameAgentDerivesStableEVMAddress(t *testing.T) {
	svc := NewService(testSeed(), testDomain())
	ctx := context.Background()

	addr1, err := svc.ForAgent("agent-1").EVMAddress(ctx)
	require.NoError(t, err)
	addr2, err := svc.ForAgent("agent-1").EVMAddress(ctx)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
}

func TestXRPWalletIsDerivedDeterministically(t *testing.T) {
	svc := NewService(testSeed(), testDomain())
	ctx := context.Background()

	w1, err := svc.ForAgent("agent-1").XRPWallet(ctx)
	require.NoError(t, err)
	w2, err := svc.ForAgent("agent-1").XRPWallet(ctx)
	require.NoError(t, err)

	assert.Equal(t, w1.ClassicAddress, w2.ClassicAddress)
	assert.NotEmpty(t, w1.ClassicAddress)
}

func TestSignBalanceProofEVMProducesRecoverableSignature(t *testing.T) {
	svc := NewService(testSeed(), testDomain())
	ctx := context.Background()
	agent := svc.ForAgent("agent-1")

	channelID := proof.ChannelID{0x01}
	p := proof.BalanceProof{
		ChannelID:         channelID,
		Nonce:             big.NewInt(1),
		TransferredAmount: big.NewInt(100),
		LockedAmount:      big.NewInt(0),
	}

	sig, err := agent.SignBalanceProof(ctx, ledger.FamilyEVM, p)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	digest, err := proof.EVMDigest(testDomain(), p)
	require.NoError(t, err)
	pub, err := proof.EVMRecover(digest, sig)
	require.NoError(t, err)

	addr, err := agent.EVMAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, proof.EVMAddress(pub))
}

func TestSignBalanceProofXRPProducesValidatableSignature(t *testing.T) {
	svc := NewService(testSeed(), testDomain())
	ctx := context.Background()
	agent := svc.ForAgent("agent-1")

	channelID := proof.ChannelID{0x02}
	p := proof.BalanceProof{
		ChannelID:         channelID,
		Nonce:             big.NewInt(1),
		TransferredAmount: big.NewInt(500),
		LockedAmount:      big.NewInt(0),
	}

	sig, err := agent.SignBalanceProof(ctx, ledger.FamilyXRP, p)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	w, err := agent.XRPWallet(ctx)
	require.NoError(t, err)

	ok, err := proof.XRPVerifyClaim(w.PublicKey, channelID, 500, strings.ToUpper(hex.EncodeToString(sig)))
	require.NoError(t, err)
	assert.True(t, ok)
}
