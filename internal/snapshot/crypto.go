package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Sealed layout: magic | salt | nonce | AES-256-GCM(ciphertext). The
// snapshot name is bound as additional data, so a blob only opens under the
// name it was written for.
var magic = []byte("SMS1")

const (
	saltSize = 16
	keySize  = 32

	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	ErrSealed          = errors.New("snapshot is sealed and no passphrase is configured")
	ErrWrongPassphrase = errors.New("snapshot passphrase does not match")
	ErrCorrupt         = errors.New("sealed snapshot is corrupt")
)

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)
}

func aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts a snapshot written under name.
func Seal(plaintext []byte, passphrase, name string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(magic) + saltSize + len(nonce) + len(plaintext) + gcm.Overhead())
	buf.Write(magic)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(gcm.Seal(nil, nonce, plaintext, []byte(name)))
	return buf.Bytes(), nil
}

// Open reverses Seal.
func Open(data []byte, passphrase, name string) ([]byte, error) {
	rest, ok := bytes.CutPrefix(data, magic)
	if !ok || len(rest) < saltSize {
		return nil, ErrCorrupt
	}
	salt, rest := rest[:saltSize], rest[saltSize:]

	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrCorrupt
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
