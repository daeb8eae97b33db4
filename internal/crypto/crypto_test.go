package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordDeterministic(t *testing.T) {
	salt := []byte("fixed-salt-bytes")
	h1, err := HashPassword(SHA256, salt, []byte("P@ssw0rd1"))
	require.NoError(t, err)
	h2, err := HashPassword(SHA256, salt, []byte("P@ssw0rd1"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := HashPassword(SHA256, salt, []byte("different"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestPasswordBlobRoundTrip(t *testing.T) {
	cfg := HashingConfig{SaltSize: 8, Algo: SHA256}
	blob, err := HashPasswordBlob(cfg, []byte("P@ssw0rd1"))
	require.NoError(t, err)

	ok, err := VerifyPasswordBlob(cfg, blob, []byte("P@ssw0rd1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPasswordBlob(cfg, blob, []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreviousConfigFallback(t *testing.T) {
	previous := HashingConfig{SaltSize: 8, Algo: SHA256}
	blob, err := HashPasswordBlob(previous, []byte("P@ssw0rd1"))
	require.NoError(t, err)

	current := HashingConfig{SaltSize: 16, Algo: SHA512}

	ok, err := VerifyPasswordBlob(current, blob, []byte("P@ssw0rd1"))
	require.NoError(t, err)
	assert.False(t, ok, "current config must not authenticate a previous-config blob")

	ok, err = VerifyPasswordBlob(previous, blob, []byte("P@ssw0rd1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRandomSaltNoRepeats(t *testing.T) {
	a, err := RandomSalt(16)
	require.NoError(t, err)
	b, err := RandomSalt(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKey(t *testing.T) {
	params := DerivedKeyParams{Algo: SHA256, Iterations: 4096, Size: 32}
	salt := []byte("derive-salt-0001")

	k1, err := DeriveKey([]byte("passphrase"), salt, params)
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := DeriveKey([]byte("passphrase"), salt, params)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestNewSymmetricMaterialGeneratesKeyAndIV(t *testing.T) {
	params := SymmetricParams{
		DefaultCipher:  AES256,
		DefaultMode:    GCM,
		DefaultIVSize:  12,
		MinKeySize:     16,
		DefaultKeySize: 32,
	}

	mat, warning, err := NewSymmetricMaterial(params, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Len(t, mat.Key, 32)
	assert.Len(t, mat.IV, 12)

	aead, err := mat.AEAD()
	require.NoError(t, err)
	assert.Equal(t, 12, aead.NonceSize())
}

func TestNewSymmetricMaterialRejectsShortKey(t *testing.T) {
	params := SymmetricParams{
		DefaultCipher:  AES256,
		DefaultMode:    GCM,
		DefaultIVSize:  12,
		MinKeySize:     16,
		DefaultKeySize: 32,
	}

	_, _, err := NewSymmetricMaterial(params, make([]byte, 8), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewSymmetricMaterialWarnsBelowDefaultKeySize(t *testing.T) {
	params := SymmetricParams{
		DefaultCipher:  AES256,
		DefaultMode:    GCM,
		DefaultIVSize:  12,
		MinKeySize:     16,
		DefaultKeySize: 32,
	}

	_, warning, err := NewSymmetricMaterial(params, make([]byte, 16), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
}

func TestCCMIVTruncationWarns(t *testing.T) {
	params := SymmetricParams{
		DefaultCipher:  AES256,
		DefaultMode:    CCM,
		DefaultIVSize:  13,
		MinKeySize:     16,
		DefaultKeySize: 32,
	}

	_, warning, err := NewSymmetricMaterial(params, nil, make([]byte, 20))
	require.NoError(t, err)
	assert.Contains(t, warning, "truncated")
}

func TestCCMIVTooShortRejected(t *testing.T) {
	params := SymmetricParams{
		DefaultCipher:  AES256,
		DefaultMode:    CCM,
		DefaultIVSize:  13,
		MinKeySize:     16,
		DefaultKeySize: 32,
	}

	_, _, err := NewSymmetricMaterial(params, nil, make([]byte, 3))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
