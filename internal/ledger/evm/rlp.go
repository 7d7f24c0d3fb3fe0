package evm

import "math/big"

// rlpEncodeBytes and rlpEncodeList implement just enough of Ethereum's RLP
// encoding to serialize a legacy transaction: byte strings and lists of
// byte strings, no nested structures beyond one level deep.

func rlpEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(rlpLengthPrefix(0x80, len(b)), b...)
}

func rlpEncodeUint(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	return rlpEncodeBytes(trimLeadingZeros(uint64ToMinBytes(v)))
}

func rlpEncodeBigInt(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return rlpEncodeBytes(v.Bytes())
}

func rlpEncodeList(items ...[]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(rlpLengthPrefix(0xc0, len(payload)), payload...)
}

func rlpLengthPrefix(base byte, n int) []byte {
	if n < 56 {
		return []byte{base + byte(n)}
	}
	lenBytes := trimLeadingZeros(uint64ToMinBytes(uint64(n)))
	out := make([]byte, 0, 1+len(lenBytes))
	out = append(out, base+55+byte(len(lenBytes)))
	return append(out, lenBytes...)
}

func uint64ToMinBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
