// Package proof implements the balance-proof and withdraw-proof codec: pure
// canonical encoding, typed-data hashing, and chain-native signing and
// verification. It performs no I/O and holds no locks — every operation is a
// deterministic function of its inputs.
package proof

import (
	"encoding/binary"
	"math/big"
)

// ChannelID is the 32-byte chain-native channel identifier shared by both
// ledger families: an EVM contract computes it from the participants'
// canonical ordering, XRPL assigns it as the ledger-entry hash of the
// PaymentChannelCreate transaction. Either way it is a flat 32-byte value.
type ChannelID [32]byte

// Hex renders the channel id as a lowercase "0x"-prefixed hex string.
func (c ChannelID) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(c)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range c {
		out[2+i*2] = hextable[b>>4]
		out[3+i*2] = hextable[b&0x0f]
	}
	return string(out)
}

// BalanceProof is the signed, monotonic off-chain state of a channel.
type BalanceProof struct {
	ChannelID         ChannelID
	Nonce             *big.Int
	TransferredAmount *big.Int
	LockedAmount      *big.Int
	LocksRoot         [32]byte
	Signature         []byte
}

// WithdrawProof is a counterparty-authorized partial withdrawal, independent
// of the balance-proof nonce sequence.
type WithdrawProof struct {
	ChannelID   ChannelID
	Participant [20]byte
	Amount      *big.Int
	Nonce       *big.Int
	Expiry      int64
	Signature   []byte
}

// Domain is the EIP-712-style typed-data domain separator: it scopes a
// signature to a protocol version, a chain, and a specific verifying
// contract, so a proof signed for one deployment can never be replayed
// against another.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract [20]byte
}

// encodeUint256BE writes v as a fixed 32-byte big-endian field, matching the
// on-chain ABI encoding of uint256. It is a fatal error for v to not fit —
// the caller has a programming bug, not a recoverable one.
func encodeUint256BE(v *big.Int) ([32]byte, error) {
	var out [32]byte
	if v == nil {
		return out, errEncodeNilAmount
	}
	if v.Sign() < 0 {
		return out, errEncodeNegativeAmount
	}
	b := v.Bytes()
	if len(b) > 32 {
		return out, errEncodeOverflow
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// canonicalProofFields returns the struct-hash preimage fields in the order
// fixed by §6: channel_id, nonce, transferred_amount, locked_amount,
// locks_root — each a 32-byte word.
func canonicalProofFields(p BalanceProof) ([5][32]byte, error) {
	var fields [5][32]byte
	fields[0] = p.ChannelID

	nonce, err := encodeUint256BE(p.Nonce)
	if err != nil {
		return fields, err
	}
	fields[1] = nonce

	transferred, err := encodeUint256BE(p.TransferredAmount)
	if err != nil {
		return fields, err
	}
	fields[2] = transferred

	locked, err := encodeUint256BE(p.LockedAmount)
	if err != nil {
		return fields, err
	}
	fields[3] = locked

	fields[4] = p.LocksRoot
	return fields, nil
}

// canonicalWithdrawFields returns the struct-hash preimage fields for a
// withdraw proof: channel_id, participant, amount, nonce, expiry.
func canonicalWithdrawFields(p WithdrawProof) ([5][32]byte, error) {
	var fields [5][32]byte
	fields[0] = p.ChannelID

	var participant [32]byte
	copy(participant[12:], p.Participant[:])
	fields[1] = participant

	amount, err := encodeUint256BE(p.Amount)
	if err != nil {
		return fields, err
	}
	fields[2] = amount

	nonce, err := encodeUint256BE(p.Nonce)
	if err != nil {
		return fields, err
	}
	fields[3] = nonce

	var expiry [32]byte
	binary.BigEndian.PutUint64(expiry[24:], uint64(p.Expiry))
	fields[4] = expiry

	return fields, nil
}
