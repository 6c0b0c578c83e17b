package creds

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
)

// AlgNKey is the JWT algorithm name used by nkey-signed tokens.
const AlgNKey = "ed25519-nkey"

// SigningMethodNKey signs and verifies with an nkeys.KeyPair.
var SigningMethodNKey = &signingMethodNKey{}

func init() {
	jwt.RegisterSigningMethod(AlgNKey, func() jwt.SigningMethod { return SigningMethodNKey })
}

type signingMethodNKey struct{}

func (m *signingMethodNKey) Alg() string { return AlgNKey }

func (m *signingMethodNKey) Sign(signingString string, key any) ([]byte, error) {
	kp, ok := key.(nkeys.KeyPair)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return kp.Sign([]byte(signingString))
}

func (m *signingMethodNKey) Verify(signingString string, sig []byte, key any) error {
	kp, ok := key.(nkeys.KeyPair)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if err := kp.Verify([]byte(signingString), sig); err != nil {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// UserClaims are the claims of a user JWT.
type UserClaims struct {
	Name string         `json:"name,omitempty"`
	Nats map[string]any `json:"nats,omitempty"`
	jwt.RegisteredClaims
}

// VerifyUserJWT checks the token signature against its issuer's public
// nkey and validates the standard time claims.
func VerifyUserJWT(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}
		kp, err := nkeys.FromPublicKey(iss)
		if err != nil {
			return nil, fmt.Errorf("issuer %q: %w", iss, err)
		}
		return kp, nil
	}, jwt.WithValidMethods([]string{AlgNKey}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return nil, fmt.Errorf("verify user JWT: %w", err)
	}

	if !nkeys.IsValidPublicUserKey(claims.Subject) {
		return nil, fmt.Errorf("%w: subject %q is not a user key", ErrInvalidClaims, claims.Subject)
	}
	return claims, nil
}
