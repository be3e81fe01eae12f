package license

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, 19)

		groups := strings.Split(key, "-")
		require.Len(t, groups, 4)
		for _, g := range groups {
			require.Len(t, g, 4)
			for _, r := range g {
				require.Contains(t, keyAlphabet, string(r))
			}
		}
	}
}

func TestGenerateKeyExcludesAmbiguousCharacters(t *testing.T) {
	for _, banned := range []string{"0", "O", "1", "I"} {
		require.NotContains(t, keyAlphabet, banned)
	}
}

func TestGenerateKeyIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}
