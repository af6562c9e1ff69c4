package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const challengeBytes = 32

// maxAuthAttempts bounds signature retries on one connection.
const maxAuthAttempts = 3

// Authenticator implements the challenge-response handshake: the server
// issues a random nonce and the client proves knowledge of the shared
// secret by returning its HMAC-SHA256 signature.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(sharedSecret string) *Authenticator {
	return &Authenticator{secret: []byte(sharedSecret)}
}

// NewChallenge returns a fresh hex-encoded random nonce.
func (a *Authenticator) NewChallenge() (string, error) {
	nonce := make([]byte, challengeBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(nonce), nil
}

// Verify checks signature against the expected HMAC of challenge in
// constant time.
func (a *Authenticator) Verify(challenge, signature string) bool {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(challenge))
	want := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}

// Authenticate settles a client's handshake with the supplied signature and
// moves the client to the authenticated state on success. Failures count
// against the attempt limit.
func (a *Authenticator) Authenticate(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return authFailure("No challenge found")
	}

	if !a.Verify(client.Challenge, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return authFailure("Too many failed attempts")
		}
		return authFailure("Invalid signature")
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{Event: "auth.success", Success: true}
}

func authFailure(message string) AuthResult {
	return AuthResult{Event: "auth.failure", Success: false, Message: message}
}
