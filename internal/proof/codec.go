package proof

import (
	"encoding/binary"
	"math/big"

	"gitlab.com/warrant1/connector/internal/errs"
)

// wireVersion prefixes every encoded message so a future format change can
// be rejected cleanly instead of silently misparsed.
const wireVersion = 1

// Encode serializes p into the canonical wire form specified in §6:
// version || channel_id || nonce || transferred_amount || locked_amount ||
// locks_root || signature_len || signature. Every amount field is the same
// fixed 32-byte big-endian word used for on-chain hashing, so the encoder
// doubles as the struct-hash preimage builder.
func Encode(p BalanceProof) ([]byte, error) {
	fields, err := canonicalProofFields(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+32*5+2+len(p.Signature))
	out = append(out, wireVersion)
	for _, f := range fields {
		out = append(out, f[:]...)
	}
	var sigLen [2]byte
	binary.BigEndian.PutUint16(sigLen[:], uint16(len(p.Signature)))
	out = append(out, sigLen[:]...)
	out = append(out, p.Signature...)
	return out, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (BalanceProof, error) {
	const fixedLen = 1 + 32*5 + 2
	if len(b) < fixedLen {
		return BalanceProof{}, errs.New(errs.KindUnknown, "codec: message too short")
	}
	if b[0] != wireVersion {
		return BalanceProof{}, errs.New(errs.KindUnknown, "codec: unsupported wire version")
	}
	off := 1

	var p BalanceProof
	copy(p.ChannelID[:], b[off:off+32])
	off += 32

	p.Nonce = new(big.Int).SetBytes(b[off : off+32])
	off += 32

	p.TransferredAmount = new(big.Int).SetBytes(b[off : off+32])
	off += 32

	p.LockedAmount = new(big.Int).SetBytes(b[off : off+32])
	off += 32

	copy(p.LocksRoot[:], b[off:off+32])
	off += 32

	sigLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	if len(b) != off+sigLen {
		return BalanceProof{}, errs.New(errs.KindUnknown, "codec: signature length mismatch")
	}
	p.Signature = append([]byte(nil), b[off:off+sigLen]...)
	return p, nil
}
