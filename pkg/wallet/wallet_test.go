package wallet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestMnemonicDerivation(t *testing.T) {
	w1, err := NewWalletFromMnemonic(testMnemonic)
	require.NoError(t, err)
	w2, err := NewWalletFromMnemonic(testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, w1.Address, w2.Address)
	assert.Equal(t, crypto.PubkeyToAddress(w1.PrivateKey.PublicKey), w1.Address)

	m, err := GenerateMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)
	w3, err := NewWalletFromMnemonic(m)
	require.NoError(t, err)
	assert.NotEqual(t, w1.Address, w3.Address)

	_, err = NewWalletFromMnemonic("abandon abandon abandon")
	assert.Error(t, err)
}

func TestSignatureRecoversAddress(t *testing.T) {
	w, err := NewWalletFromMnemonic(testMnemonic)
	require.NoError(t, err)

	digest := crypto.Keccak256([]byte("register"))
	sig, err := crypto.Sign(digest, w.PrivateKey)
	require.NoError(t, err)

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address, crypto.PubkeyToAddress(*pub))
}

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := NewWalletFromMnemonic(testMnemonic)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "owner.json")
	assert.False(t, WalletExists(path))
	require.NoError(t, SaveWalletToFile(w, "hunter2", path, LightScryptN))
	assert.True(t, WalletExists(path))

	loaded, err := LoadWalletFromFile("hunter2", path)
	require.NoError(t, err)
	assert.Equal(t, w.Address, loaded.Address)
	assert.Equal(t, crypto.FromECDSA(w.PrivateKey), crypto.FromECDSA(loaded.PrivateKey))

	_, err = LoadWalletFromFile("wrong", path)
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestKeystoreIsSecretStorageJSON(t *testing.T) {
	w, err := NewWalletFromMnemonic(testMnemonic)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, SaveWalletToFile(w, "hunter2", path, LightScryptN))

	keyjson, err := os.ReadFile(path)
	require.NoError(t, err)
	key, err := keystore.DecryptKey(keyjson, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.Address, key.Address)
	assert.Equal(t, crypto.FromECDSA(w.PrivateKey), crypto.FromECDSA(key.PrivateKey))

	_, err = Decrypt([]byte("{not json"), "hunter2")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPassword)
}
