package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

// TokenScryptN is the scrypt cost used by HashToken. One derivation takes
// about 32 MiB and 100ms; only tokens that do not match the cached one pay
// it, and those requests are bounded by the API rate limit.
const TokenScryptN = 1 << 15

// HashToken derives the string stored in API.AdminTokenHash:
// scrypt$<N>$<salt hex>$<key hex>.
func HashToken(token string) (string, error) {
	return hashToken(token, TokenScryptN)
}

func hashToken(token string, n int) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(token), salt, n, 8, 1, 32)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}
	return fmt.Sprintf("scrypt$%d$%s$%s", n, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// VerifyToken reports whether token matches a HashToken result. A malformed
// hash never matches.
func VerifyToken(hash, token string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 4 || parts[0] != "scrypt" || token == "" {
		return false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}
	got, err := scrypt.Key([]byte(token), salt, n, 8, 1, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// tokenVerifier checks admin tokens against a HashToken result and remembers
// the digest of the last token that matched, so repeat requests skip scrypt.
type tokenVerifier struct {
	hash string

	mu    sync.Mutex
	known common.Hash
}

func newTokenVerifier(hash string) *tokenVerifier {
	return &tokenVerifier{hash: hash}
}

func (v *tokenVerifier) Verify(token string) bool {
	if v.hash == "" || token == "" {
		return false
	}
	digest := crypto.Keccak256Hash([]byte(v.hash), []byte(token))

	v.mu.Lock()
	known := v.known
	v.mu.Unlock()
	if known != (common.Hash{}) && subtle.ConstantTimeCompare(digest[:], known[:]) == 1 {
		return true
	}

	if !VerifyToken(v.hash, token) {
		return false
	}
	v.mu.Lock()
	v.known = digest
	v.mu.Unlock()
	return true
}
