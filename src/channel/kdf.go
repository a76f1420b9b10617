package channel

import (
	"encoding/binary"
	"math/big"

	"github.com/agoranet/agora/src/crypto"
)

// strengtheningRounds is the number of re-hash iterations applied to the
// initial digest when deriving a symmetric key.
const strengtheningRounds = 21

// DeriveKey turns a Diffie-Hellman shared secret into a 32 byte symmetric
// key bound to a context string. The secret is serialized to the group's
// fixed 256 byte big-endian width, hashed together with the context, and the
// digest is then re-hashed with an iteration counter a fixed number of
// rounds. Identical (secret, context) pairs always derive the identical key;
// distinct contexts over the same secret derive distinct keys.
func DeriveKey(secret *big.Int, context string) []byte {
	material := make([]byte, 0, groupByteLen+len(context))
	material = append(material, secretBytes(secret)...)
	material = append(material, []byte(context)...)

	digest := crypto.SHA256(material)

	var counter [4]byte
	for round := uint32(0); round < strengtheningRounds; round++ {
		binary.BigEndian.PutUint32(counter[:], round)

		block := make([]byte, 0, len(digest)+len(counter))
		block = append(block, digest...)
		block = append(block, counter[:]...)

		digest = crypto.SHA256(block)
	}

	return digest
}

// secretBytes serializes a group element to its fixed big-endian width.
func secretBytes(secret *big.Int) []byte {
	buf := make([]byte, groupByteLen)

	b := secret.Bytes()
	copy(buf[groupByteLen-len(b):], b)

	return buf
}
