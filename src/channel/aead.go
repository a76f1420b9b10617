package channel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"reflect"

	"github.com/ugorji/go/codec"
)

const (
	// ivSize is the AES-GCM nonce size in bytes (96 bits).
	ivSize = 12

	// tagSize is the GCM authentication tag size in bytes (128 bits).
	tagSize = 16
)

// ErrAuthentication is returned by Decrypt when the authentication tag does
// not verify, which means the ciphertext was tampered with or sealed under a
// different key.
var ErrAuthentication = errors.New("channel: message authentication failed")

// Sealed is the transportable output of Encrypt. The IV, ciphertext, and
// authentication tag are base64 encoded so each component can travel
// independently inside JSON messages.
type Sealed struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Encrypt seals a message under a 32 byte key with AES-256-GCM. Strings are
// encrypted as raw text; any other message is first encoded as canonical
// JSON. A fresh random 96-bit IV is drawn on every call, so sealing the same
// message twice never yields the same output.
func Encrypt(message interface{}, key []byte) (*Sealed, error) {
	plaintext, err := encodePayload(message)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	split := len(sealed) - tagSize

	return &Sealed{
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		Tag:        base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt opens a Sealed message and verifies its authentication tag. Tag
// verification failure is a hard error, never a garbage plaintext. On
// success the plaintext is decoded as canonical JSON when possible, and
// returned as raw text otherwise.
func Decrypt(sealed *Sealed, key []byte) (interface{}, error) {
	if sealed == nil {
		return nil, errors.New("channel: nil sealed message")
	}

	iv, err := base64.StdEncoding.DecodeString(sealed.IV)
	if err != nil {
		return nil, ErrAuthentication
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, ErrAuthentication
	}

	tag, err := base64.StdEncoding.DecodeString(sealed.Tag)
	if err != nil {
		return nil, ErrAuthentication
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealedBytes := make([]byte, 0, len(ciphertext)+len(tag))
	sealedBytes = append(sealedBytes, ciphertext...)
	sealedBytes = append(sealedBytes, tag...)

	plaintext, err := gcm.Open(nil, iv, sealedBytes, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return decodePayload(plaintext), nil
}

func encodePayload(message interface{}) ([]byte, error) {
	if s, ok := message.(string); ok {
		return []byte(s), nil
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())
	if err := enc.Encode(message); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodePayload(plaintext []byte) interface{} {
	var decoded interface{}

	dec := codec.NewDecoder(bytes.NewReader(plaintext), jsonHandle())
	if err := dec.Decode(&decoded); err != nil {
		return string(plaintext)
	}

	return decoded
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}
