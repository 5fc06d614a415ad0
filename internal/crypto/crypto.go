// Package crypto seals the history document at rest with NaCl secretbox.
//
// A 32-byte key is derived from the user's passphrase with scrypt under a
// random salt stored in the document. A sealed document is a fixed magic
// prefix, the salt, a random 24-byte nonce and the ciphertext:
//
//	[ "CHX2" ][ 16-byte salt ][ 24-byte nonce ][ ciphertext ]
//
// Documents written by older releases carry "CHX1" and no salt; their key
// came from HKDF-SHA256. They still open, and the next save rewrites them
// in the current layout.
//
// The prefix lets the loader tell sealed documents from plain JSON ones, so
// turning encryption on does not strand an existing history.
package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keySize   = 32
	saltSize  = 16
	nonceSize = 24

	// scrypt cost parameters (N, r, p).
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	magic       = []byte("CHX2")
	legacyMagic = []byte("CHX1")
	hkdfInfo    = []byte("cliphist-history-v1")
)

// ErrDecrypt is returned when a sealed document cannot be opened.
var ErrDecrypt = errors.New("decryption failed (wrong history key?)")

// Box seals and opens documents with a passphrase-derived key.
type Box struct {
	passphrase []byte

	mu   sync.Mutex
	salt []byte // salt used by Seal; fixed for the life of the Box
	key  *[keySize]byte
	seen map[string]*[keySize]byte // keys derived for opened salts
}

// NewBox returns a Box for passphrase. Both save and load must use the
// same passphrase. Key derivation is deferred to the first Seal or Open.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt generation: %w", err)
	}
	return &Box{
		passphrase: []byte(passphrase),
		salt:       salt,
		seen:       make(map[string]*[keySize]byte),
	}, nil
}

// Sealed reports whether data carries a sealed-document prefix.
func Sealed(data []byte) bool {
	return bytes.HasPrefix(data, magic) || bytes.HasPrefix(data, legacyMagic)
}

// Seal encrypts plaintext under the Box's salt and a fresh random nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	b.mu.Lock()
	key, err := b.derive(b.salt)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, magic...)
	out = append(out, b.salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

// Open decrypts a document produced by Seal, or by an older release.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	var (
		key  *[keySize]byte
		body []byte
		err  error
	)
	switch {
	case bytes.HasPrefix(sealed, magic) && len(sealed) >= len(magic)+saltSize+nonceSize:
		salt := sealed[len(magic) : len(magic)+saltSize]
		b.mu.Lock()
		key, err = b.derive(salt)
		b.mu.Unlock()
		body = sealed[len(magic)+saltSize:]
	case bytes.HasPrefix(sealed, legacyMagic) && len(sealed) >= len(legacyMagic)+nonceSize:
		key, err = b.legacyKey()
		body = sealed[len(legacyMagic):]
	default:
		return nil, fmt.Errorf("%w: not a sealed document", ErrDecrypt)
	}
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], body[:nonceSize])
	plain, ok := secretbox.Open(nil, body[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// derive returns the scrypt key for salt, caching it. b.mu must be held.
func (b *Box) derive(salt []byte) (*[keySize]byte, error) {
	if bytes.Equal(salt, b.salt) && b.key != nil {
		return b.key, nil
	}
	if k, ok := b.seen[string(salt)]; ok {
		return k, nil
	}
	raw, err := scrypt.Key(b.passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	k := new([keySize]byte)
	copy(k[:], raw)
	if bytes.Equal(salt, b.salt) {
		b.key = k
	} else {
		b.seen[string(salt)] = k
	}
	return k, nil
}

// legacyKey is the unsalted HKDF key used by "CHX1" documents.
func (b *Box) legacyKey() (*[keySize]byte, error) {
	h := hkdf.New(sha256.New, b.passphrase, nil, hkdfInfo)
	k := new([keySize]byte)
	if _, err := io.ReadFull(h, k[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return k, nil
}
