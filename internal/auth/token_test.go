package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIssueVerify(t *testing.T) {
	tok := NewTokens("s3cret", time.Hour)
	raw, err := tok.Issue("12309972")
	require.NoError(t, err)

	id, err := tok.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "12309972", id)
}

func TestVerifyExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	raw, err := NewTokens("s3cret", time.Hour).WithClock(func() time.Time { return past }).Issue("1")
	require.NoError(t, err)

	_, err = NewTokens("s3cret", time.Hour).Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyInvalid(t *testing.T) {
	raw, err := NewTokens("other", time.Hour).Issue("1")
	require.NoError(t, err)

	tok := NewTokens("s3cret", time.Hour)
	_, err = tok.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tok.Verify("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tok.Verify(none)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("12309972", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "12309972"))
	assert.False(t, CheckPassword(h, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "x"))
}
