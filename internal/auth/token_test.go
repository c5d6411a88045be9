package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	id := uuid.New()

	token, exp, err := m.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	id := uuid.New()

	expired, _, err := NewTokenManager("secret", -time.Minute).Issue(id)
	require.NoError(t, err)

	foreign, _, err := NewTokenManager("other", time.Hour).Issue(id)
	require.NoError(t, err)

	// a file-download token signed with the same secret must not authenticate
	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		Audience:  jwt.ClaimStrings{"files"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: id.String()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":        expired,
		"foreign secret": foreign,
		"wrong audience": wrongAudience,
		"none alg":       noneAlg,
		"garbage":        "not-a-token",
		"empty":          "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
