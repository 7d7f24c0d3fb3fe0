package proof

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/Peersyst/xrpl-go/keypairs"

	"gitlab.com/warrant1/connector/internal/errs"
)

// xrpClaimPrefix is the fixed 4-byte prefix XRPL prepends to a PayChannel
// claim preimage before signing, per §6: `"CLM\0" || channel_id || amount_be_u64`.
var xrpClaimPrefix = [4]byte{'C', 'L', 'M', 0}

// XRPClaimPreimage builds the message XRPL signs for a payment-channel
// claim: the fixed prefix, the 32-byte channel id, and the cumulative claim
// amount as a big-endian uint64 of drops.
func XRPClaimPreimage(channelID ChannelID, amountDrops uint64) []byte {
	buf := make([]byte, 4+32+8)
	copy(buf[0:4], xrpClaimPrefix[:])
	copy(buf[4:36], channelID[:])
	binary.BigEndian.PutUint64(buf[36:44], amountDrops)
	return buf
}

// XRPSignClaim signs a channel claim for amountDrops using privKeySecret,
// the XRPL family-seed-encoded secret produced by the signer service. It
// returns the signature as an uppercase hex string, XRPL's conventional
// encoding.
func XRPSignClaim(privKeySecret string, channelID ChannelID, amountDrops uint64) (string, error) {
	preimage := XRPClaimPreimage(channelID, amountDrops)
	sig, err := keypairs.Sign(hex.EncodeToString(preimage), privKeySecret)
	if err != nil {
		return "", errs.Wrap(errs.KindInvalidSignature, "xrp claim sign", err)
	}
	return sig, nil
}

// XRPVerifyClaim verifies a channel claim signature against the channel's
// public key (hex-encoded, as returned by the signer/ledger adapter).
func XRPVerifyClaim(pubKeyHex string, channelID ChannelID, amountDrops uint64, sigHex string) (bool, error) {
	preimage := XRPClaimPreimage(channelID, amountDrops)
	ok, err := keypairs.Validate(hex.EncodeToString(preimage), pubKeyHex, sigHex)
	if err != nil {
		return false, errs.Wrap(errs.KindInvalidSignature, "xrp claim verify", err)
	}
	return ok, nil
}
