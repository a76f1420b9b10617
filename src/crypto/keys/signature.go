package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Sign signs a hash with the private key.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, hash)
}

// Verify checks that the signature given by r and s was produced over hash by
// the owner of the private key matching pub.
func Verify(pub *ecdsa.PublicKey, hash []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, hash, r, s)
}

// EncodeSignature returns the text form of a signature, the r and s values in
// hex separated by a colon.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s:%s", r.Text(16), s.Text(16))
}

// DecodeSignature parses the text form produced by EncodeSignature.
func DecodeSignature(sig string) (*big.Int, *big.Int, error) {
	values := strings.Split(sig, ":")
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("signature should have 2 values, not %d", len(values))
	}

	r, ok := new(big.Int).SetString(values[0], 16)
	if !ok {
		return nil, nil, fmt.Errorf("parsing r value: %s", values[0])
	}

	s, ok := new(big.Int).SetString(values[1], 16)
	if !ok {
		return nil, nil, fmt.Errorf("parsing s value: %s", values[1])
	}

	return r, s, nil
}
