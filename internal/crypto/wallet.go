// Package crypto provides cryptographic utilities for XRPL wallet management.
// It includes functions for key derivation, wallet creation, and address generation
// using BIP-44 hierarchical deterministic wallet standards.
package crypto

import (
	"fmt"

	"github.com/Peersyst/xrpl-go/xrpl/transaction/types"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Wallet represents an XRPL wallet with address, public key, and private key.
// It provides methods for wallet validation and string representation.
type Wallet struct {
	// Address is the XRPL account address in classic format (starts with 'r').
	Address types.Address

	// PublicKey is the hexadecimal representation of the wallet's public key.
	PublicKey string

	// PrivateKey is the XRPL secret used for signing transactions.
	PrivateKey string
}

// NewWallet creates and returns a new Wallet instance.
// It validates the wallet data before returning the instance.
func NewWallet(address types.Address, publicKey, privateKey string) (*Wallet, error) {
	w := &Wallet{Address: address, PublicKey: publicKey, PrivateKey: privateKey}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// String returns the wallet's address, its primary identifier.
func (w Wallet) String() string {
	return string(w.Address)
}

// Validate checks that the wallet contains valid data.
func (w Wallet) Validate() error {
	if w.Address == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}
	if w.PublicKey == "" {
		return fmt.Errorf("wallet public key cannot be empty")
	}
	if w.PrivateKey == "" {
		return fmt.Errorf("wallet private key cannot be empty")
	}
	return w.Address.Validate()
}

// NewWalletFromExtendedKey creates a new Wallet from an extended key, using
// the XRPL-specific key derivation process.
func NewWalletFromExtendedKey(key *hdkeychain.ExtendedKey) (*Wallet, error) {
	if key == nil {
		return nil, fmt.Errorf("extended key cannot be nil")
	}
	address, public, private, err := GetXRPLWallet(key)
	if err != nil {
		return nil, err
	}
	return NewWallet(types.Address(address), public, private)
}

// NewWalletFromHexSeed creates a new Wallet from a hexadecimal seed and derivation path.
func NewWalletFromHexSeed(hexSeed string, path string) (*Wallet, error) {
	key, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, path)
	if err != nil {
		return nil, err
	}
	return NewWalletFromExtendedKey(key)
}
