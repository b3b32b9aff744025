package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMeetupCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateMeetupCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)

		for _, r := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, r),
				"символ %q вне алфавита", r)
		}
		seen[code] = true
	}
	// Коды не вырождаются в одно значение
	assert.Greater(t, len(seen), 100)
}

func TestCodeAlphabetAvoidsAmbiguousChars(t *testing.T) {
	// Код диктуют вслух при встрече: похожие символы исключены
	for _, r := range "0O1IL" {
		assert.NotContains(t, CodeAlphabet, string(r))
	}
}
