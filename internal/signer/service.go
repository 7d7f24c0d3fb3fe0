// Package signer implements the Signer Service (C9): deterministic
// per-agent, per-chain key derivation off a single hierarchical master
// seed. A derived EVM private key is held only for the duration of the
// signing call that needs it and zeroed immediately afterward; derived XRP
// keys are handled as encoded strings, which are not zeroed. Nothing in
// this package or its callers ever persists a private key.
package signer

import (
	"context"
	"encoding/hex"
	"hash/fnv"
	"strconv"

	"github.com/Peersyst/xrpl-go/xrpl/transaction/types"
	xrplwallet "github.com/Peersyst/xrpl-go/xrpl/wallet"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"gitlab.com/warrant1/connector/internal/crypto"
	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
)

const (
	evmCoinType = 60
	xrpCoinType = 144
)

// Service holds the master seed every agent's keys are derived from. The
// seed itself is never zeroed — it must survive for the process lifetime —
// but every key derived from it is transient.
type Service struct {
	masterSeedHex string
	evmDomain     proof.Domain
}

// NewService constructs a Service from a hex-encoded master seed and the
// EIP-712 domain this connector signs balance proofs under (one domain per
// deployed channel contract).
func NewService(masterSeedHex string, evmDomain proof.Domain) *Service {
	return &Service{masterSeedHex: masterSeedHex, evmDomain: evmDomain}
}

// ForAgent returns a signer scoped to a single agent, satisfying
// ledger/evm.Signer and ledger/xrp.Signer.
func (s *Service) ForAgent(agentID string) *AgentSigner {
	return &AgentSigner{svc: s, agentID: agentID}
}

// SignBalanceProof resolves the signing agent per call rather than binding
// one at construction time, satisfying channel.Signer across however many
// agents the connector serves concurrently.
func (s *Service) SignBalanceProof(ctx context.Context, agentID string, family ledger.Family, p proof.BalanceProof) ([]byte, error) {
	return s.ForAgent(agentID).SignBalanceProof(ctx, family, p)
}

// deriveIndex maps an arbitrary agent id to a non-hardened BIP-44 address
// index via FNV-1a, so agent ids never need to be numeric themselves.
func deriveIndex(agentID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return h.Sum32() % hdkeychain.HardenedKeyStart
}

// AgentSigner is the per-agent signing capability handed to the ledger
// adapters and the Channel Manager.
type AgentSigner struct {
	svc     *Service
	agentID string
}

func (a *AgentSigner) evmPath() string {
	return derivationPath(evmCoinType, deriveIndex(a.agentID))
}

func (a *AgentSigner) xrpPath() string {
	return derivationPath(xrpCoinType, deriveIndex(a.agentID))
}

func derivationPath(coinType, index uint32) string {
	return "m/44'/" + strconv.FormatUint(uint64(coinType), 10) + "'/0'/0/" + strconv.FormatUint(uint64(index), 10)
}

// derivedEVMKey is a just-derived EVM keypair, held only long enough to
// sign one digest before being zeroed.
type derivedEVMKey struct {
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey
}

// evmPrivateKey derives this agent's EVM secp256k1 key fresh from the
// master seed. Callers must zero the returned key once done with it.
func (a *AgentSigner) evmPrivateKey() (*derivedEVMKey, error) {
	key, err := crypto.GetExtendedKeyFromHexSeedWithPath(a.svc.masterSeedHex, a.evmPath())
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "derive evm key", err)
	}
	priv, pub, err := crypto.GetEVMKeyPair(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "derive evm keypair", err)
	}
	return &derivedEVMKey{priv: priv, pub: pub}, nil
}

// SignEVM signs digest with this agent's EVM key, for raw ledger
// transaction signing (ledger/evm.Signer).
func (a *AgentSigner) SignEVM(ctx context.Context, digest [32]byte) ([]byte, error) {
	k, err := a.evmPrivateKey()
	if err != nil {
		return nil, err
	}
	defer k.priv.Zero()
	return proof.EVMSign(k.priv, digest)
}

// EVMAddress returns this agent's EVM address (ledger/evm.Signer).
func (a *AgentSigner) EVMAddress(ctx context.Context) ([20]byte, error) {
	k, err := a.evmPrivateKey()
	if err != nil {
		return [20]byte{}, err
	}
	defer k.priv.Zero()
	return proof.EVMAddress(k.pub), nil
}

// XRPWallet returns this agent's XRPL wallet (ledger/xrp.Signer). The
// returned value carries a private key string for the duration of one
// transaction submission; the caller does not retain it beyond that call.
func (a *AgentSigner) XRPWallet(ctx context.Context) (*xrplwallet.Wallet, error) {
	key, err := crypto.GetExtendedKeyFromHexSeedWithPath(a.svc.masterSeedHex, a.xrpPath())
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "derive xrp key", err)
	}
	address, public, private, err := crypto.GetXRPLWallet(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "derive xrp wallet", err)
	}
	return &xrplwallet.Wallet{
		PublicKey:      public,
		PrivateKey:     private,
		ClassicAddress: types.Address(address),
	}, nil
}

// SignBalanceProof produces this agent's half of a balance proof, for
// whichever chain family p belongs to (channel.Signer).
func (a *AgentSigner) SignBalanceProof(ctx context.Context, family ledger.Family, p proof.BalanceProof) ([]byte, error) {
	switch family {
	case ledger.FamilyEVM:
		digest, err := proof.EVMDigest(a.svc.evmDomain, p)
		if err != nil {
			return nil, err
		}
		return a.SignEVM(ctx, digest)
	case ledger.FamilyXRP:
		key, err := crypto.GetExtendedKeyFromHexSeedWithPath(a.svc.masterSeedHex, a.xrpPath())
		if err != nil {
			return nil, errs.Wrap(errs.KindUnknown, "derive xrp key", err)
		}
		_, _, private, err := crypto.GetXRPLWallet(key)
		if err != nil {
			return nil, errs.Wrap(errs.KindUnknown, "derive xrp wallet", err)
		}
		sigHex, err := proof.XRPSignClaim(private, p.ChannelID, p.TransferredAmount.Uint64())
		if err != nil {
			return nil, err
		}
		return hex.DecodeString(sigHex)
	default:
		return nil, errs.New(errs.KindUnsupported, "unknown ledger family for balance proof signing")
	}
}
