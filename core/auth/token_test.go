package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("bot-token")
	now    = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
)

func TestFileTokenRoundTrip(t *testing.T) {
	token, err := IssueFileToken(secret, 42, "/tmp/a/My_Song.mp3", time.Hour, now)
	require.NoError(t, err)

	claims, err := ParseFileToken(secret, token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "/tmp/a/My_Song.mp3", claims.Path)
}

func TestFileTokenExpired(t *testing.T) {
	token, err := IssueFileToken(secret, 1, "/x.mp3", time.Minute, now)
	require.NoError(t, err)

	_, err = ParseFileToken(secret, token, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFileTokenWrongSecret(t *testing.T) {
	token, err := IssueFileToken(secret, 1, "/x.mp3", time.Hour, now)
	require.NoError(t, err)

	_, err = ParseFileToken([]byte("other"), token, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFileTokenTampered(t *testing.T) {
	token, err := IssueFileToken(secret, 1, "/x.mp3", time.Hour, now)
	require.NoError(t, err)

	_, err = ParseFileToken(secret, token[:len(token)-2]+"xx", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := IssueFileToken(nil, 1, "/x.mp3", time.Hour, now)
	assert.Error(t, err)
}
