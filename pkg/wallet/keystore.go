package wallet

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
)

const (
	StandardScryptN = keystore.StandardScryptN
	LightScryptN    = keystore.LightScryptN
)

var ErrInvalidPassword = errors.New("invalid password")

// Encrypt seals the private key in the Web3 secret storage format.
func (w *Wallet) Encrypt(password string, scryptN int) ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate key id: %w", err)
	}
	scryptP := keystore.StandardScryptP
	if scryptN == LightScryptN {
		scryptP = keystore.LightScryptP
	}
	key := &keystore.Key{Id: id, Address: w.Address, PrivateKey: w.PrivateKey}
	return keystore.EncryptKey(key, password, scryptN, scryptP)
}

// Decrypt recovers a wallet from keystore JSON. A wrong password yields
// ErrInvalidPassword.
func Decrypt(keyjson []byte, password string) (*Wallet, error) {
	key, err := keystore.DecryptKey(keyjson, password)
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, ErrInvalidPassword
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}
	return &Wallet{PrivateKey: key.PrivateKey, Address: key.Address}, nil
}

func SaveWalletToFile(w *Wallet, password, path string, scryptN int) error {
	keyjson, err := w.Encrypt(password, scryptN)
	if err != nil {
		return err
	}
	return os.WriteFile(path, keyjson, 0600)
}

func LoadWalletFromFile(password, path string) (*Wallet, error) {
	keyjson, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(keyjson, password)
}

func WalletExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
