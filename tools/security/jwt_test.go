package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	token, err := Generate(opts, IdentityClaims{UserID: "u1", Username: "alice", IsAdmin: true})
	require.NoError(t, err)

	claims, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := Generate(DefaultOptions([]byte("secret")), IdentityClaims{UserID: "u1"})
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("other")), token)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := Generate(Options{Secret: []byte("secret"), Alg: "HS256", TTL: time.Millisecond}, IdentityClaims{UserID: "u1"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond) // exp has second granularity

	_, err = Verify(DefaultOptions([]byte("secret")), token)
	require.Error(t, err)
}

func TestExtractWithoutVerification(t *testing.T) {
	token, err := Generate(DefaultOptions([]byte("whatever")), IdentityClaims{UserID: "u1", Username: "alice"})
	require.NoError(t, err)

	claims, err := Extract(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestExtractGarbage(t *testing.T) {
	_, err := Extract("definitely not a jwt")
	require.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	_, err := Generate(Options{Secret: []byte("s"), Alg: "RS256"}, IdentityClaims{})
	require.Error(t, err)
}
