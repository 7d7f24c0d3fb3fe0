package evm

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// legacyTx is a pre-EIP-1559 Ethereum transaction, sufficient for the
// connector's channel-contract calls; no component needs priority-fee
// auctioning.
type legacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       [20]byte
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int
}

// signingHash returns the EIP-155 hash the signer signs: keccak256 of the
// RLP-encoded transaction with (chainID, 0, 0) in place of the signature.
func (tx legacyTx) signingHash() [32]byte {
	enc := rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint(tx.GasLimit),
		rlpEncodeBytes(tx.To[:]),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBigInt(tx.ChainID),
		rlpEncodeUint(0),
		rlpEncodeUint(0),
	)
	h := sha3.NewLegacyKeccak256()
	h.Write(enc)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// encodeSigned RLP-encodes tx with an EIP-155 signature (r, s, v) attached,
// producing the raw bytes eth_sendRawTransaction expects.
func (tx legacyTx) encodeSigned(sig []byte) []byte {
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	recoveryID := big.NewInt(int64(sig[64]) - 27)

	v := new(big.Int).Mul(tx.ChainID, big.NewInt(2))
	v.Add(v, big.NewInt(35))
	v.Add(v, recoveryID)

	return rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint(tx.GasLimit),
		rlpEncodeBytes(tx.To[:]),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBigInt(v),
		rlpEncodeBigInt(r),
		rlpEncodeBigInt(s),
	)
}
