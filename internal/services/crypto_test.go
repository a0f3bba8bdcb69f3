package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAEADEncrypterRoundTrip(t *testing.T) {
	enc, err := NewAEADEncrypter("app-key")
	require.NoError(t, err)

	a, err := enc.Encrypt("sk_test_123")
	require.NoError(t, err)
	b, err := enc.Encrypt("sk_test_123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "every call uses a fresh nonce")
	assert.NotContains(t, a, "sk_test_123")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_123", plain)
}

func TestAEADEncrypterRejectsForeignCiphertext(t *testing.T) {
	enc, err := NewAEADEncrypter("app-key")
	require.NoError(t, err)
	other, err := NewAEADEncrypter("another-key")
	require.NoError(t, err)

	sealed, err := other.Encrypt("value")
	require.NoError(t, err)
	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)

	_, err = enc.Decrypt("not base64!")
	assert.Error(t, err)
	_, err = enc.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}

func TestAEADEncrypterRequiresKey(t *testing.T) {
	_, err := NewAEADEncrypter("")
	assert.Error(t, err)
}
