package channel

import (
	"encoding/base64"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptDecryptString(t *testing.T) {
	key := testKey()

	sealed, err := Encrypt("attack at dawn", key)
	if err != nil {
		t.Fatal(err)
	}

	message, err := Decrypt(sealed, key)
	if err != nil {
		t.Fatal(err)
	}

	if message != "attack at dawn" {
		t.Fatalf("round trip mismatch: %v", message)
	}
}

func TestEncryptDecryptObject(t *testing.T) {
	key := testKey()

	payload := map[string]interface{}{
		"kind":    "judgment",
		"verdict": "accept",
	}

	sealed, err := Encrypt(payload, key)
	if err != nil {
		t.Fatal(err)
	}

	message, err := Decrypt(sealed, key)
	if err != nil {
		t.Fatal(err)
	}

	decoded, ok := message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded object, got %T", message)
	}

	if decoded["kind"] != "judgment" || decoded["verdict"] != "accept" {
		t.Fatalf("round trip mismatch: %v", decoded)
	}
}

func TestEncryptFreshIV(t *testing.T) {
	key := testKey()

	first, err := Encrypt("repeated message", key)
	if err != nil {
		t.Fatal(err)
	}

	second, err := Encrypt("repeated message", key)
	if err != nil {
		t.Fatal(err)
	}

	if first.IV == second.IV {
		t.Fatalf("two encryptions should not share an IV")
	}

	if first.Ciphertext == second.Ciphertext {
		t.Fatalf("two encryptions should not share ciphertext")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := testKey()

	sealed, err := Encrypt("integrity matters", key)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, _ := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	ciphertext[0] ^= 0x01
	sealed.Ciphertext = base64.StdEncoding.EncodeToString(ciphertext)

	if _, err := Decrypt(sealed, key); err != ErrAuthentication {
		t.Fatalf("tampered ciphertext should fail authentication, got %v", err)
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	key := testKey()

	sealed, err := Encrypt("integrity matters", key)
	if err != nil {
		t.Fatal(err)
	}

	tag, _ := base64.StdEncoding.DecodeString(sealed.Tag)
	tag[len(tag)-1] ^= 0x80
	sealed.Tag = base64.StdEncoding.EncodeToString(tag)

	if _, err := Decrypt(sealed, key); err != ErrAuthentication {
		t.Fatalf("tampered tag should fail authentication, got %v", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := Encrypt("for your eyes only", testKey())
	if err != nil {
		t.Fatal(err)
	}

	wrongKey := testKey()
	wrongKey[0] ^= 0xff

	if _, err := Decrypt(sealed, wrongKey); err != ErrAuthentication {
		t.Fatalf("wrong key should fail authentication, got %v", err)
	}
}
