// Package crypto is the content confidentiality module: a pure transform
// over its inputs with no storage or network side effects.
//
// Each message gets a fresh 32-byte data key. The content is sealed with
// XChaCha20-Poly1305 under the data key; the data key itself is sealed under
// the service master key and returned as opaque key material. Decrypting a
// ciphertext with another message's key material fails authentication rather
// than yielding garbage.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	dErrors "everkeep/pkg/domain-errors"
)

// KeySize is the master key length NewCodec requires.
const KeySize = chacha20poly1305.KeySize

// Codec seals and opens message content under a service master key.
type Codec struct {
	master []byte
}

// NewCodec builds a codec from a raw 32-byte master key.
func NewCodec(masterKey []byte) (*Codec, error) {
	if len(masterKey) != KeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("master key must be %d bytes", KeySize))
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Codec{master: key}, nil
}

// NewCodecFromBase64 builds a codec from the base64 form used in config.
func NewCodecFromBase64(encoded string) (*Codec, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "master key is not valid base64")
	}
	return NewCodec(raw)
}

// GenerateMasterKey returns a fresh base64 master key for provisioning.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate master key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext under a fresh data key and wraps that key under
// the master key. Returns base64 ciphertext and base64 key material.
func (c *Codec) Seal(plaintext string) (ciphertext string, keyMaterial string, err error) {
	dataKey := make([]byte, KeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return "", "", fmt.Errorf("generate data key: %w", err)
	}

	sealed, err := seal(dataKey, []byte(plaintext))
	if err != nil {
		return "", "", err
	}
	wrapped, err := seal(c.master, dataKey)
	if err != nil {
		return "", "", err
	}

	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(wrapped), nil
}

// Open unwraps the data key and decrypts the ciphertext. Any tampering with
// either input, and any cross-message key mix-up, fails with CodeIntegrity —
// never with silently corrupted plaintext.
func (c *Codec) Open(ciphertext string, keyMaterial string) (string, error) {
	wrapped, err := base64.StdEncoding.DecodeString(keyMaterial)
	if err != nil {
		return "", dErrors.New(dErrors.CodeIntegrity, "key material is not valid base64")
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", dErrors.New(dErrors.CodeIntegrity, "ciphertext is not valid base64")
	}

	dataKey, err := open(c.master, wrapped)
	if err != nil {
		return "", dErrors.New(dErrors.CodeIntegrity, "key material failed authentication")
	}
	plaintext, err := open(dataKey, sealed)
	if err != nil {
		return "", dErrors.New(dErrors.CodeIntegrity, "ciphertext failed authentication")
	}
	return string(plaintext), nil
}

// seal produces nonce || AEAD(plaintext).
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, body, nil)
}
