package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credgate/go-core/internal/auth"
)

func TestGenerate(t *testing.T) {
	g := NewGenerator()

	keyID, secret, preview, err := g.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(keyID, KeyIDPrefix))
	assert.NotEmpty(t, secret)
	assert.NotContains(t, keyID, CredentialSeparator)
	assert.NotContains(t, secret, CredentialSeparator)

	t.Run("preview shows prefix and secret tail only", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(preview, KeyIDPrefix+"..."))
		assert.True(t, strings.HasSuffix(preview, secret[len(secret)-4:]))
		assert.NotContains(t, preview, secret[:len(secret)-4])
	})

	t.Run("successive calls differ", func(t *testing.T) {
		keyID2, secret2, _, err := g.Generate()
		require.NoError(t, err)
		assert.NotEqual(t, keyID, keyID2)
		assert.NotEqual(t, secret, secret2)
	})
}

func TestSplitCredential(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		keyID, secret, err := SplitCredential("cg-abc.supersecret")
		require.NoError(t, err)
		assert.Equal(t, "cg-abc", keyID)
		assert.Equal(t, "supersecret", secret)
	})

	t.Run("secret containing separator stays intact", func(t *testing.T) {
		keyID, secret, err := SplitCredential("cg-abc.part1.part2")
		require.NoError(t, err)
		assert.Equal(t, "cg-abc", keyID)
		assert.Equal(t, "part1.part2", secret)
	})

	malformed := []string{"", "nodot", ".secretonly", "keyonly.", "."}
	for _, credential := range malformed {
		t.Run("malformed "+credential, func(t *testing.T) {
			_, _, err := SplitCredential(credential)
			assert.ErrorIs(t, err, auth.ErrInvalidCredentialFormat)
		})
	}
}
