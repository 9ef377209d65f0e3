// Package keyhash derives the opaque vault access handle from a password and
// salt. Clients prove possession of the vault key by presenting the same
// derivation; the server only ever compares hashes.
package keyhash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters fixed by the wire protocol. The memory cap of the
// reference derivation (2^26 bytes) is implied by N and r.
const (
	costN  = 32
	blockR = 8
	parP   = 1
	keyLen = 32
)

// Make derives the keyhash for (password, salt): hex(sha256(scrypt(password, salt))).
// The result is always 64 lowercase hex characters.
func Make(password, salt string) (string, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), costN, blockR, parP, keyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt derivation failed: %w", err)
	}
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:]), nil
}

// Equal compares two keyhashes in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
