package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

func TestBox_SealOpen(t *testing.T) {
	box, err := NewBox("correct horse")
	require.NoError(t, err)

	sealed, err := box.Seal([]byte(`{"version":1}`))
	require.NoError(t, err)
	assert.True(t, Sealed(sealed))
	assert.NotContains(t, string(sealed), "version")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(plain))
}

func TestBox_WrongPassphrase(t *testing.T) {
	a, _ := NewBox("one")
	b, _ := NewBox("two")
	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestBox_RejectsPlainInput(t *testing.T) {
	box, _ := NewBox("k")
	_, err := box.Open([]byte(`{"entries":[]}`))
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.False(t, Sealed([]byte(`{"entries":[]}`)))
}

func TestNewBox_EmptyPassphrase(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}

func TestBox_SaltedScryptKey(t *testing.T) {
	a, err := NewBox("same passphrase")
	require.NoError(t, err)
	b, err := NewBox("same passphrase")
	require.NoError(t, err)

	sa, err := a.Seal([]byte("x"))
	require.NoError(t, err)
	sb, err := b.Seal([]byte("x"))
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(sa, []byte("CHX2")))
	saltA := sa[len(magic) : len(magic)+saltSize]
	saltB := sb[len(magic) : len(magic)+saltSize]
	assert.NotEqual(t, saltA, saltB, "each box draws its own salt")

	want, err := scrypt.Key([]byte("same passphrase"), saltA, scryptN, scryptR, scryptP, keySize)
	require.NoError(t, err)
	assert.Equal(t, want, a.key[:])

	// Another box with the same passphrase opens it through the stored salt.
	plain, err := b.Open(sa)
	require.NoError(t, err)
	assert.Equal(t, "x", string(plain))
}

func TestBox_OpensLegacyDocument(t *testing.T) {
	box, err := NewBox("old key")
	require.NoError(t, err)
	key, err := box.legacyKey()
	require.NoError(t, err)

	var nonce [nonceSize]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)
	legacy := append([]byte("CHX1"), nonce[:]...)
	legacy = secretbox.Seal(legacy, []byte("legacy history"), &nonce, key)
	assert.True(t, Sealed(legacy))

	plain, err := box.Open(legacy)
	require.NoError(t, err)
	assert.Equal(t, "legacy history", string(plain))

	resealed, err := box.Seal(plain)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(resealed, []byte("CHX2")))
}

func TestBox_TruncatedDocument(t *testing.T) {
	box, _ := NewBox("k")
	_, err := box.Open([]byte("CHX2short"))
	assert.ErrorIs(t, err, ErrDecrypt)
}
