// Package crypto provides the BIP-44 hierarchical-deterministic key
// derivation shared by every chain family the signer service supports. It
// derives XRPL and EVM keys from a single master seed; it never generates
// that seed itself.
package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ac "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/Peersyst/xrpl-go/keypairs"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// GetExtendedKeyFromHexSeedWithPath creates an extended key from a hexadecimal seed string
// and derives it along the specified BIP-44 derivation path.
//
// Parameters:
// - hexSeed: A hexadecimal string representing the master seed
// - path: The BIP-44 derivation path (e.g., "m/44'/144'/0'/0/0")
func GetExtendedKeyFromHexSeedWithPath(hexSeed string, path string) (*hdkeychain.ExtendedKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex seed: %w", err)
	}
	return GetExtendedKeyFromSeedWithPath(seed, path)
}

// GetExtendedKeyFromSeedWithPath creates an extended key from raw seed bytes
// and derives it along the specified BIP-44 derivation path.
func GetExtendedKeyFromSeedWithPath(seed []byte, path string) (*hdkeychain.ExtendedKey, error) {
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	derivationPath, err := parseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse derivation path: %w", err)
	}

	currentKey := masterKey
	for i, childIndex := range derivationPath {
		currentKey, err = currentKey.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key at level %d (index %d): %w", i, childIndex, err)
		}
	}

	return currentKey, nil
}

// parseDerivationPath parses a BIP-44 derivation path string into an array of indices.
// Hardened derivation indices are offset by HardenedKeyStart (0x80000000).
func parseDerivationPath(path string) ([]uint32, error) {
	if path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	if len(path) >= 2 && path[:2] == "m/" {
		path = path[2:]
	}

	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return nil, fmt.Errorf("invalid path format")
	}

	derivationPath := make([]uint32, len(parts))
	for i, part := range parts {
		hardened := false
		if strings.HasSuffix(part, "'") {
			hardened = true
			part = part[:len(part)-1]
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path component %s: %w", part, err)
		}

		if hardened {
			derivationPath[i] = hdkeychain.HardenedKeyStart + uint32(index)
		} else {
			derivationPath[i] = uint32(index)
		}
	}

	return derivationPath, nil
}

// GetXRPLWallet creates a complete XRPL wallet from an extended key.
// Returns the wallet address, public key (hex), private key (secret), and any error that occurred.
func GetXRPLWallet(key *hdkeychain.ExtendedKey) (address string, public string, private string, err error) {
	secret, err := getXRPLSecret(key)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get secret from key: %w", err)
	}

	privKey, pubKeyHex, err := keypairs.DeriveKeypair(secret, false)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to derive keypair: %w", err)
	}

	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to decode public key: %w", err)
	}

	accountID := ac.Sha256RipeMD160(pubKeyBytes)
	address, err = ac.Encode(accountID, []byte{ac.AccountAddressPrefix}, ac.AccountAddressLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode classic address: %w", err)
	}
	return address, pubKeyHex, privKey, nil
}

// getXRPLSecret converts a Bitcoin extended key to XRPL secret format.
func getXRPLSecret(key *hdkeychain.ExtendedKey) (string, error) {
	privKey, err := key.ECPrivKey()
	if err != nil {
		return "", fmt.Errorf("failed to get private key: %w", err)
	}

	privKeyBytes := privKey.Serialize()

	secret, err := ac.Encode(privKeyBytes, []byte{0x01, 0xe1, 0x4b}, 32)
	if err != nil {
		return "", fmt.Errorf("failed to encode XRPL secret: %w", err)
	}
	return secret, nil
}

// GetEVMKeyPair derives a raw secp256k1 keypair from an extended key, for use
// by the EVM balance-proof signer. Unlike the XRPL path this never leaves
// the btcec/secp256k1 domain: there is no address-codec step, since EVM
// addresses are derived from the uncompressed public key by the ledger
// adapter, not by this package.
func GetEVMKeyPair(key *hdkeychain.ExtendedKey) (priv *btcec.PrivateKey, pub *btcec.PublicKey, err error) {
	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return ecPriv, ecPriv.PubKey(), nil
}
