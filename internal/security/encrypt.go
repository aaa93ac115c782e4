package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

// Stored bodies come in three shapes:
//
//	v1:<base64(nonce|ciphertext)>  AES-GCM, written by Seal
//	<base64(nonce|ciphertext)>     AES-GCM without a version tag, legacy
//	gAAAAA...                      Fernet token under ENCRYPTION_KEY or a legacy key
//
// Anything else is treated as plaintext by Open.
const sealedPrefix = "v1:"

var errUndecryptable = errors.New("body does not decrypt with any configured key")

// Encryptor protects message bodies at rest.
type Encryptor struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

// NewEncryptor derives the AES-256 key from key with SHA-256. key and each of
// legacyKeys are also tried as Fernet keys for reading old rows; entries that
// are not valid Fernet keys are skipped.
func NewEncryptor(key []byte, legacyKeys []string) (*Encryptor, error) {
	if len(key) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	e := &Encryptor{aead: aead}
	for _, raw := range append([]string{string(key)}, legacyKeys...) {
		if k, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			e.legacy = append(e.legacy, k)
		}
	}
	return e, nil
}

// Encrypt returns the v1 form of plain.
func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(stored string) (string, error) {
	if rest, ok := strings.CutPrefix(stored, sealedPrefix); ok {
		return e.openGCM(rest)
	}
	if plain, err := e.openGCM(stored); err == nil {
		return plain, nil
	}
	if len(e.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(stored), 0, e.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", errUndecryptable
}

func (e *Encryptor) openGCM(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < e.aead.NonceSize() {
		return "", errUndecryptable
	}
	n := e.aead.NonceSize()
	plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", errUndecryptable
	}
	return string(plain), nil
}

// Seal encrypts a body for storage. Empty bodies stay empty and a nil
// Encryptor stores plaintext.
func (e *Encryptor) Seal(body string) (string, error) {
	if e == nil || body == "" {
		return body, nil
	}
	return e.Encrypt(body)
}

// Open reverses Seal. Values that do not decrypt are returned unchanged so
// rows written before encryption was enabled stay readable.
func (e *Encryptor) Open(stored string) string {
	if e == nil || stored == "" {
		return stored
	}
	plain, err := e.Decrypt(stored)
	if err != nil {
		return stored
	}
	return plain
}
