package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("generates distinct url-safe tokens", func(t *testing.T) {
		a, err := GenerateToken(TokenSize256)
		require.NoError(t, err)
		b, err := GenerateToken(TokenSize256)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
		require.Len(t, a, 43)
		require.NotContains(t, a, "=")
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)
	})
}

func TestGenerateNonce(t *testing.T) {
	t.Parallel()

	nonce, err := GenerateNonce(16)
	require.NoError(t, err)
	require.Len(t, nonce, 32)

	raw, err := hex.DecodeString(nonce)
	require.NoError(t, err)
	require.Len(t, raw, 16)
}

func TestHMACBase64(t *testing.T) {
	t.Parallel()

	a := HMACBase64("1700000000:42:user@example.com", "secret-key")
	b := HMACBase64("1700000000:42:user@example.com", "secret-key")
	c := HMACBase64("1700000000:42:user@example.com", "other-key")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.True(t, HMACEqual(a, b))
	require.False(t, HMACEqual(a, c))
}

func TestFingerprintTokenIsStable(t *testing.T) {
	t.Parallel()

	require.Equal(t, FingerprintToken("abc"), FingerprintToken("abc"))
	require.NotEqual(t, FingerprintToken("abc"), FingerprintToken("abd"))
}
