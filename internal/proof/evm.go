package proof

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"gitlab.com/warrant1/connector/internal/errs"
)

var (
	balanceProofTypeHash  = keccak256([]byte("BalanceProof(bytes32 channel_id,uint256 nonce,uint256 transferred_amount,uint256 locked_amount,bytes32 locks_root)"))
	withdrawProofTypeHash = keccak256([]byte("WithdrawProof(bytes32 channel_id,address participant,uint256 amount,uint256 nonce,uint256 expiry)"))
	eip712DomainTypeHash  = keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

func keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// domainSeparator computes the EIP-712 domain separator hash for d.
func domainSeparator(d Domain) [32]byte {
	nameHash := keccak256([]byte(d.Name))
	versionHash := keccak256([]byte(d.Version))

	var chainID [32]byte
	if d.ChainID != nil {
		b := d.ChainID.Bytes()
		copy(chainID[32-len(b):], b)
	}

	var verifyingContract [32]byte
	copy(verifyingContract[12:], d.VerifyingContract[:])

	return keccak256(
		eip712DomainTypeHash[:],
		nameHash[:],
		versionHash[:],
		chainID[:],
		verifyingContract[:],
	)
}

// EVMDigest computes the typed-data digest a participant signs for a
// BalanceProof: `keccak256("\x19\x01" || domainSeparator || structHash)`,
// the standard EIP-712 message digest.
func EVMDigest(domain Domain, p BalanceProof) ([32]byte, error) {
	fields, err := canonicalProofFields(p)
	if err != nil {
		return [32]byte{}, err
	}
	structHash := keccak256(
		balanceProofTypeHash[:],
		fields[0][:], fields[1][:], fields[2][:], fields[3][:], fields[4][:],
	)
	sep := domainSeparator(domain)
	return keccak256([]byte{0x19, 0x01}, sep[:], structHash[:]), nil
}

// EVMWithdrawDigest computes the typed-data digest for a WithdrawProof.
func EVMWithdrawDigest(domain Domain, p WithdrawProof) ([32]byte, error) {
	fields, err := canonicalWithdrawFields(p)
	if err != nil {
		return [32]byte{}, err
	}
	structHash := keccak256(
		withdrawProofTypeHash[:],
		fields[0][:], fields[1][:], fields[2][:], fields[3][:], fields[4][:],
	)
	sep := domainSeparator(domain)
	return keccak256([]byte{0x19, 0x01}, sep[:], structHash[:]), nil
}

// EVMSign signs digest with priv, returning the 65-byte `r || s || v`
// concatenation §6 specifies, with v in Ethereum's {27,28} convention.
func EVMSign(priv *btcec.PrivateKey, digest [32]byte) ([]byte, error) {
	sig := ecdsa.SignCompact(priv, digest[:], false)
	// btcec's compact format is `recovery_id || r || s`; re-pack to `r || s || v`.
	if len(sig) != 65 {
		return nil, errs.New(errs.KindInvalidSignature, "unexpected compact signature length")
	}
	recID := sig[0] - 27
	out := make([]byte, 65)
	copy(out[0:32], sig[1:33])
	copy(out[32:64], sig[33:65])
	out[64] = recID + 27
	return out, nil
}

// EVMRecover recovers the public key that produced sig over digest. It
// fails with errs.KindInvalidSignature if sig is malformed or does not
// recover.
func EVMRecover(digest [32]byte, sig []byte) (*btcec.PublicKey, error) {
	if len(sig) != 65 {
		return nil, errs.New(errs.KindInvalidSignature, "signature must be 65 bytes")
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	compact := make([]byte, 65)
	compact[0] = v + 27
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidSignature, "recover", err)
	}
	return pub, nil
}

// EVMAddress derives the 20-byte Ethereum-style address from an
// uncompressed public key: the low 20 bytes of keccak256(pubkey[1:]).
func EVMAddress(pub *btcec.PublicKey) [20]byte {
	uncompressed := pub.SerializeUncompressed()
	h := keccak256(uncompressed[1:])
	var addr [20]byte
	copy(addr[:], h[12:])
	return addr
}

func (c ChannelID) String() string { return fmt.Sprintf("ChannelID(%s)", c.Hex()) }
