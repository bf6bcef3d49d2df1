// Package oauth2params provides the generators of parameters such as state
// and PKCE (RFC 7636).
package oauth2params

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/xerrors"
)

const codeVerifierBytes = 256 / 8

// PKCE represents a pair of the code verifier and its derived parameters.
// See https://tools.ietf.org/html/rfc7636
type PKCE struct {
	CodeChallenge       string
	CodeChallengeMethod string
	CodeVerifier        string
}

// New generates a PKCE parameter set with the S256 method.
// It returns an error if the random source is unavailable.
func New() (PKCE, error) {
	b := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(b); err != nil {
		return PKCE{}, xerrors.Errorf("could not initialize the random source: %w", err)
	}
	return computeS256(b), nil
}

// computeS256 derives the verifier and challenge from the raw bytes.
// The challenge is the hash of the encoded verifier string, not of the raw
// bytes, which is what the token endpoint recomputes and compares.
func computeS256(b []byte) PKCE {
	verifier := base64.RawURLEncoding.EncodeToString(b)
	s := sha256.Sum256([]byte(verifier))
	return PKCE{
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(s[:]),
		CodeChallengeMethod: "S256",
		CodeVerifier:        verifier,
	}
}
