package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	// ErrMissingCredential indicates that no shared credential was configured.
	ErrMissingCredential = errors.New("auth: shared credential required")
	// ErrInvalidCredential indicates that a presented credential did not match.
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// CredentialVerifier checks the single shared secret that gates every
// endpoint. The comparison is constant time so a caller cannot probe the
// credential byte by byte.
type CredentialVerifier struct {
	credential []byte
}

// NewCredentialVerifier constructs a verifier for the configured secret.
func NewCredentialVerifier(credential string) (*CredentialVerifier, error) {
	trimmed := strings.TrimSpace(credential)
	if trimmed == "" {
		return nil, ErrMissingCredential
	}
	return &CredentialVerifier{credential: []byte(trimmed)}, nil
}

// Verify reports whether the presented value matches the shared credential.
func (v *CredentialVerifier) Verify(presented string) error {
	if subtle.ConstantTimeCompare(v.credential, []byte(presented)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}
