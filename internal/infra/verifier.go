// README: Bearer token verification. One verifier per process, picked by auth mode.
package infra

import (
	"context"
	"errors"
	"fmt"
)

const (
	VerifierFirebase = "firebase"
	VerifierJWT      = "jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a verified caller identity.
type Token struct {
	UID    string
	Claims map[string]interface{}
}

// Role returns the "role" custom claim, or "" when absent.
func (t *Token) Role() string {
	if r, ok := t.Claims["role"].(string); ok {
		return r
	}
	return ""
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*Token, error)
}

type VerifierOptions struct {
	Mode              string
	FirebaseProjectID string
	CredentialsFile   string
	JWTSecret         string
	JWTIssuer         string
}

// NewVerifier builds the verifier for opts.Mode. Firebase is the default.
func NewVerifier(ctx context.Context, opts VerifierOptions) (TokenVerifier, error) {
	switch opts.Mode {
	case VerifierJWT:
		v, err := NewJWTVerifier(opts.JWTSecret, opts.JWTIssuer)
		if err != nil {
			return nil, err
		}
		return v, nil
	case VerifierFirebase, "":
		if opts.FirebaseProjectID == "" {
			return nil, errors.New("firebase project id is required")
		}
		v, err := NewFirebaseVerifier(ctx, opts.FirebaseProjectID, opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firebase init: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("auth mode %q is not supported", opts.Mode)
}
