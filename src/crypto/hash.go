package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 digest of data.
func SHA256(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}
