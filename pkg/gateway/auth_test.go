package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

func TestNewChallenge(t *testing.T) {
	a := NewAuthenticator("secret")

	c1, err := a.NewChallenge()
	require.NoError(t, err)
	assert.Len(t, c1, 64)

	c2, err := a.NewChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestVerify(t *testing.T) {
	a := NewAuthenticator("secret")
	challenge := "abc123"

	assert.True(t, a.Verify(challenge, sign("secret", challenge)))
	assert.False(t, a.Verify(challenge, sign("wrong", challenge)))
	assert.False(t, a.Verify(challenge, "not-hex"))
}

func TestAuthenticateSuccess(t *testing.T) {
	a := NewAuthenticator("secret")
	client := &Client{Challenge: "chal"}

	result := a.Authenticate(client, sign("secret", "chal"))
	assert.True(t, result.Success)
	assert.True(t, client.Authenticated)
	assert.Equal(t, StateAuthenticated, client.State)
	assert.Empty(t, client.Challenge)
}

func TestAuthenticateFailures(t *testing.T) {
	a := NewAuthenticator("secret")

	// No challenge issued.
	result := a.Authenticate(&Client{}, "sig")
	assert.False(t, result.Success)
	assert.Equal(t, "No challenge found", result.Message)

	// Bad signature increments the attempt counter.
	client := &Client{Challenge: "chal"}
	for i := 1; i <= 2; i++ {
		result = a.Authenticate(client, "bad")
		assert.False(t, result.Success)
		assert.Equal(t, "Invalid signature", result.Message)
		assert.Equal(t, i, client.AuthAttempts)
	}

	// Third failure is terminal.
	result = a.Authenticate(client, "bad")
	assert.False(t, result.Success)
	assert.Equal(t, "Too many failed attempts", result.Message)
	assert.False(t, client.Authenticated)
}
