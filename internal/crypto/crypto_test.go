package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	hexSeed            = "434670347c6bb7c791e3629fc79c38307315d625fc5b448a601abda6ba54f7efd0cfe70bf769f7e3545c970851f6fe9132ad658101ed1ff9cb2edfeb5dd2d19f"
	evmDerivationPath  = "m/44'/60'/0'/0/0"
)

func TestGetExtendedKeyFromHexSeedWithPath(t *testing.T) {
	tests := []struct {
		name    string
		hexSeed string
		path    string
		wantErr bool
	}{
		{name: "valid seed and path", hexSeed: hexSeed, path: testDerivationPath, wantErr: false},
		{name: "empty seed", hexSeed: "", path: testDerivationPath, wantErr: true},
		{name: "invalid hex", hexSeed: "invalid_hex_string", path: testDerivationPath, wantErr: true},
		{name: "short seed (16 bytes)", hexSeed: "1234567890abcdef1234567890abcdef", path: testDerivationPath, wantErr: false},
		{name: "too short seed (8 bytes)", hexSeed: "1234567890abcdef", path: testDerivationPath, wantErr: true},
		{name: "empty path", hexSeed: hexSeed, path: "", wantErr: true},
		{name: "invalid path component", hexSeed: hexSeed, path: "m/abc/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GetExtendedKeyFromHexSeedWithPath(tt.hexSeed, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, key)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, key)
		})
	}
}

func TestGetXRPLWallet(t *testing.T) {
	key, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, testDerivationPath)
	assert.NoError(t, err)

	address, public, private, err := GetXRPLWallet(key)
	assert.NoError(t, err)
	assert.NotEmpty(t, address)
	assert.NotEmpty(t, public)
	assert.NotEmpty(t, private)
	assert.Equal(t, byte('r'), address[0])
}

func TestGetXRPLWalletDeterministic(t *testing.T) {
	key1, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, testDerivationPath)
	assert.NoError(t, err)
	key2, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, testDerivationPath)
	assert.NoError(t, err)

	addr1, pub1, priv1, err := GetXRPLWallet(key1)
	assert.NoError(t, err)
	addr2, pub2, priv2, err := GetXRPLWallet(key2)
	assert.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)
}

func TestGetEVMKeyPair(t *testing.T) {
	key, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, evmDerivationPath)
	assert.NoError(t, err)

	priv, pub, err := GetEVMKeyPair(key)
	assert.NoError(t, err)
	assert.NotNil(t, priv)
	assert.NotNil(t, pub)
	assert.Len(t, pub.SerializeUncompressed(), 65)
}

func TestGetEVMKeyPairDistinctFromXRPLPath(t *testing.T) {
	xrplKey, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, testDerivationPath)
	assert.NoError(t, err)
	evmKey, err := GetExtendedKeyFromHexSeedWithPath(hexSeed, evmDerivationPath)
	assert.NoError(t, err)

	_, xrplPub, err := GetEVMKeyPair(xrplKey)
	assert.NoError(t, err)
	_, evmPub, err := GetEVMKeyPair(evmKey)
	assert.NoError(t, err)

	assert.NotEqual(t, xrplPub.SerializeCompressed(), evmPub.SerializeCompressed())
}
