package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashEqual performs constant-time comparison of two hex-encoded hashes.
// Version tokens are not secrets, but policy is to compare all hashes this
// way so nobody has to reason about which call sites are timing-sensitive.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex computes the SHA-256 hash of data and returns it as a hex string
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// XXH64Hex computes the xxh64 hash of data as a fixed-width hex string.
// Fast and deterministic; collision resistance is sized for an asset corpus,
// not for adversarial input.
func XXH64Hex(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// IsHex reports whether s is non-empty and entirely hex digits. Version
// tokens must pass this before they are ever used in a filesystem path.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
