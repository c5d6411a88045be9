package randstr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordCharset(t *testing.T) {
	require.Len(t, PasswordChars, 70)

	seen := make(map[byte]bool)
	for _, c := range PasswordChars {
		assert.False(t, seen[c], "duplicate character %q", c)
		seen[c] = true
	}
}

func TestPassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := Password(8)
		require.Len(t, p, 8)
		for _, c := range []byte(p) {
			assert.True(t, bytes.IndexByte(PasswordChars, c) >= 0, "unexpected character %q", c)
		}
	}

	assert.NotEqual(t, Password(16), Password(16))
}

func TestNumeric(t *testing.T) {
	code := Numeric(6)
	require.Len(t, code, 6)
	assert.Regexp(t, `^\d{6}$`, code)
}

func TestBytesEdgeCases(t *testing.T) {
	assert.Nil(t, Bytes(0, Digits))
	assert.Nil(t, Bytes(-1, Digits))
	assert.Panics(t, func() { Bytes(4, []byte("a")) })
	assert.Len(t, Bytes(5000, Digits), 5000)
}
