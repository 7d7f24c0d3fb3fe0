package proof

import (
	"math/big"
	"testing"

	"github.com/Peersyst/xrpl-go/keypairs"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "connector-channel",
		Version:           "1",
		ChainID:           big.NewInt(8453),
		VerifyingContract: [20]byte{0x01, 0x02, 0x03},
	}
}

func testProof(nonce, transferred int64) BalanceProof {
	return BalanceProof{
		ChannelID:         ChannelID{0xaa, 0xbb},
		Nonce:             big.NewInt(nonce),
		TransferredAmount: big.NewInt(transferred),
		LockedAmount:      big.NewInt(0),
	}
}

func TestEVMSignRecoverIdentity(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	domain := testDomain()
	p := testProof(1, 100)

	digest, err := EVMDigest(domain, p)
	require.NoError(t, err)

	sig, err := EVMSign(priv, digest)
	require.NoError(t, err)
	assert.Len(t, sig, 65)

	recovered, err := EVMRecover(digest, sig)
	require.NoError(t, err)

	wantAddr := EVMAddress(priv.PubKey())
	gotAddr := EVMAddress(recovered)
	assert.Equal(t, wantAddr, gotAddr)
}

func TestEVMDigestIsDeterministic(t *testing.T) {
	domain := testDomain()
	p := testProof(1, 100)

	d1, err := EVMDigest(domain, p)
	require.NoError(t, err)
	d2, err := EVMDigest(domain, p)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestEVMDigestDiffersByDomain(t *testing.T) {
	p := testProof(1, 100)

	d1, err := EVMDigest(testDomain(), p)
	require.NoError(t, err)

	other := testDomain()
	other.ChainID = big.NewInt(1)
	d2, err := EVMDigest(other, p)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestEVMDigestRejectsNilAmount(t *testing.T) {
	p := testProof(1, 100)
	p.TransferredAmount = nil

	_, err := EVMDigest(testDomain(), p)
	assert.Error(t, err)
}

func TestEncodeDecodeIdentity(t *testing.T) {
	p := testProof(7, 12345)
	p.Signature = []byte{0xde, 0xad, 0xbe, 0xef}

	wire, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(wire)
	require.NoError(t, err)

	assert.Equal(t, p.ChannelID, got.ChannelID)
	assert.Equal(t, 0, p.Nonce.Cmp(got.Nonce))
	assert.Equal(t, 0, p.TransferredAmount.Cmp(got.TransferredAmount))
	assert.Equal(t, 0, p.LockedAmount.Cmp(got.LockedAmount))
	assert.Equal(t, p.Signature, got.Signature)
}

func TestDecodeRejectsTruncatedMessage(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	p := testProof(1, 1)
	wire, err := Encode(p)
	require.NoError(t, err)
	wire[0] = 99

	_, err = Decode(wire)
	assert.Error(t, err)
}

func TestXRPClaimSignVerifyRoundTrip(t *testing.T) {
	// A well-known XRPL test seed -> secret, as used throughout the
	// vendor's own fixtures.
	const secret = "snoPBrXtMeMyMHUVTgbuqAfg1SUTb"

	channelID := ChannelID{0x01, 0x02, 0x03, 0x04}
	preimage := XRPClaimPreimage(channelID, 1_000_000)
	assert.Len(t, preimage, 44)
	assert.Equal(t, byte('C'), preimage[0])
	assert.Equal(t, byte('L'), preimage[1])
	assert.Equal(t, byte('M'), preimage[2])
	assert.Equal(t, byte(0), preimage[3])

	sig, err := XRPSignClaim(secret, channelID, 1_000_000)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, pubKeyHex, err := keypairs.DeriveKeypair(secret, false)
	require.NoError(t, err)

	ok, err := XRPVerifyClaim(pubKeyHex, channelID, 1_000_000, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	wrongOk, err := XRPVerifyClaim(pubKeyHex, channelID, 2_000_000, sig)
	require.NoError(t, err)
	assert.False(t, wrongOk)
}
