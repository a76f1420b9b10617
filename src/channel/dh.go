// Package channel implements authenticated encrypted channels between pairs
// of node identities. A channel performs a Diffie-Hellman key exchange over
// a fixed 2048-bit MODP group, derives a symmetric key from the shared
// secret, and seals messages with AES-256-GCM. No secret material ever
// crosses the wire; each side sends only its public key.
package channel

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// 2048-bit MODP group from RFC 3526, section 3. The modulus is a safe
// prime; the generator is 2.
const groupPrimeHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

const (
	// groupByteLen is the fixed width, in bytes, of serialized group
	// elements.
	groupByteLen = 256

	// privateKeyBytes is the size of the random private exponent.
	privateKeyBytes = 32
)

var (
	groupPrime     *big.Int
	groupGenerator = big.NewInt(2)

	one = big.NewInt(1)
	two = big.NewInt(2)
)

func init() {
	p, ok := new(big.Int).SetString(groupPrimeHex, 16)
	if !ok {
		panic("channel: invalid group prime")
	}
	groupPrime = p
}

// KeyPair is an ephemeral Diffie-Hellman key pair. The private exponent is
// generated fresh per channel and never serialized.
type KeyPair struct {
	Private *big.Int
	Public  *big.Int
}

// GenerateKeyPair draws a 256-bit random private exponent and computes the
// matching public key over the fixed group.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := randomExponent()
	if err != nil {
		return nil, fmt.Errorf("channel: generating private exponent: %v", err)
	}

	return &KeyPair{
		Private: priv,
		Public:  modPow(groupGenerator, priv, groupPrime),
	}, nil
}

// ComputeSharedSecret combines a local private exponent with a remote public
// key. For any two key pairs A and B,
// ComputeSharedSecret(A.Private, B.Public) equals
// ComputeSharedSecret(B.Private, A.Public).
func ComputeSharedSecret(myPrivate, theirPublic *big.Int) *big.Int {
	return modPow(theirPublic, myPrivate, groupPrime)
}

func randomExponent() (*big.Int, error) {
	buf := make([]byte, privateKeyBytes)

	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}

		exp := new(big.Int).SetBytes(buf)

		// reject degenerate exponents
		if exp.Cmp(two) >= 0 {
			return exp, nil
		}
	}
}

// modPow computes base^exponent mod modulus by binary square-and-multiply,
// one squaring per exponent bit.
func modPow(base, exponent, modulus *big.Int) *big.Int {
	result := big.NewInt(1)

	if modulus.Cmp(one) <= 0 {
		return big.NewInt(0)
	}

	b := new(big.Int).Mod(base, modulus)
	e := new(big.Int).Set(exponent)

	for e.Sign() > 0 {
		if e.Bit(0) == 1 {
			result.Mul(result, b)
			result.Mod(result, modulus)
		}
		e.Rsh(e, 1)
		b.Mul(b, b)
		b.Mod(b, modulus)
	}

	return result
}
