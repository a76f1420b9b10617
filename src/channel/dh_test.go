package channel

import (
	"bytes"
	"math/big"
	"testing"
)

func TestModPow(t *testing.T) {
	if res := modPow(big.NewInt(2), big.NewInt(10), big.NewInt(1000)); res.Cmp(big.NewInt(24)) != 0 {
		t.Fatalf("modPow(2, 10, 1000) should be 24, not %s", res)
	}

	if res := modPow(big.NewInt(5), big.NewInt(0), big.NewInt(7)); res.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("modPow(5, 0, 7) should be 1, not %s", res)
	}

	if res := modPow(big.NewInt(3), big.NewInt(4), big.NewInt(1)); res.Sign() != 0 {
		t.Fatalf("modPow mod 1 should be 0, not %s", res)
	}

	// cross-check against the library implementation
	base := big.NewInt(123456789)
	exp := big.NewInt(987654321)
	mod := big.NewInt(1000000007)

	want := new(big.Int).Exp(base, exp, mod)
	if res := modPow(base, exp, mod); res.Cmp(want) != 0 {
		t.Fatalf("modPow disagrees with big.Int.Exp: %s != %s", res, want)
	}
}

func TestGenerateKeyPair(t *testing.T) {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	if keyPair.Private.BitLen() > 256 {
		t.Fatalf("private exponent should be at most 256 bits, got %d", keyPair.Private.BitLen())
	}

	if keyPair.Public.Cmp(one) <= 0 || keyPair.Public.Cmp(groupPrime) >= 0 {
		t.Fatalf("public key out of group range")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	if keyPair.Private.Cmp(other.Private) == 0 {
		t.Fatalf("two generated key pairs should not share a private exponent")
	}
}

func TestSharedSecretSymmetry(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ab := ComputeSharedSecret(a.Private, b.Public)
	ba := ComputeSharedSecret(b.Private, a.Public)

	if ab.Cmp(ba) != 0 {
		t.Fatalf("shared secrets should be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	secret := big.NewInt(0).SetUint64(18446744073709551557)

	key1 := DeriveKey(secret, "context-a")
	key2 := DeriveKey(secret, "context-a")
	key3 := DeriveKey(secret, "context-b")

	if len(key1) != 32 {
		t.Fatalf("derived key should be 32 bytes, got %d", len(key1))
	}

	if !bytes.Equal(key1, key2) {
		t.Fatalf("derivation should be deterministic")
	}

	if bytes.Equal(key1, key3) {
		t.Fatalf("distinct contexts should derive distinct keys")
	}
}
