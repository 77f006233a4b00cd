package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() *[32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	return &key
}

func TestCipherRoundTrip(t *testing.T) {
	c := NewCipher(testKey())

	sealed, err := c.Seal("Tan Ah Kow")
	require.NoError(t, err)
	require.NotEmpty(t, sealed)

	plaintext, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Tan Ah Kow", plaintext)
}

func TestCipherEmptyPassesThrough(t *testing.T) {
	c := NewCipher(testKey())

	sealed, err := c.Seal("")
	require.NoError(t, err)
	assert.Nil(t, sealed)

	plaintext, err := c.Open(nil)
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestCipherNonceVariesPerSeal(t *testing.T) {
	c := NewCipher(testKey())

	a, err := c.Seal("same plaintext")
	require.NoError(t, err)
	b, err := c.Seal("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipherWrongKey(t *testing.T) {
	sealed, err := NewCipher(testKey()).Seal("secret")
	require.NoError(t, err)

	var other [32]byte
	other[0] = 0xFF
	_, err = NewCipher(&other).Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherTruncatedCiphertext(t *testing.T) {
	_, err := NewCipher(testKey()).Open([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecrypt)
}
