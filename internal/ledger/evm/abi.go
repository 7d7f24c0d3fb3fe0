package evm

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// selector returns the 4-byte Solidity function selector for sig, e.g.
// "openChannel(address,address,uint256,uint256)".
func selector(sig string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	var out [4]byte
	copy(out[:], h.Sum(nil)[:4])
	return out
}

// packUint256 left-pads v into a 32-byte big-endian word, the ABI encoding
// for a static uint256/int256 argument.
func packUint256(v *big.Int) [32]byte {
	var out [32]byte
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// packAddress left-pads a 20-byte address into a 32-byte ABI word.
func packAddress(addr [20]byte) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}

// packBytes32 passes a 32-byte word through unchanged; it exists for call
// sites that build calldata from a slice of [32]byte words regardless of
// whether the underlying value is a hash, address, or integer.
func packBytes32(b [32]byte) [32]byte { return b }

// encodeCall builds calldata for sig applied to args, each a pre-packed
// 32-byte ABI word, by plain word concatenation after the selector. It
// encodes static arguments only; a call with a dynamic argument (withdraw's
// signature bytes) passes the offset and length words here and appends the
// padded data itself.
func encodeCall(sig string, args ...[32]byte) []byte {
	sel := selector(sig)
	out := make([]byte, 4+32*len(args))
	copy(out[0:4], sel[:])
	for i, a := range args {
		copy(out[4+32*i:4+32*(i+1)], a[:])
	}
	return out
}

func hexEncode(b []byte) string { return "0x" + hex.EncodeToString(b) }

func uint64ToWord(v uint64) [32]byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}
