// Package creds loads user credentials files and signs server nonces.
package creds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nkeys"
)

var (
	// ErrNoJWT is returned when a credentials file carries no user JWT.
	ErrNoJWT = errors.New("creds: no user JWT found")
	// ErrNoSeed is returned when a credentials file carries no nkey seed.
	ErrNoSeed = errors.New("creds: no nkey seed found")
	// ErrExpired is returned for a user JWT past its expiry.
	ErrExpired = errors.New("creds: user JWT expired")
	// ErrInvalidClaims is returned when JWT claims do not describe a user.
	ErrInvalidClaims = errors.New("creds: invalid user claims")
)

// Credentials is a user JWT and the key pair that proves ownership of it.
type Credentials struct {
	jwt string
	kp  nkeys.KeyPair
}

// Load reads a decorated credentials file.
func Load(path string) (*Credentials, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return Parse(contents)
}

// Parse extracts the JWT and seed blocks of a decorated credentials file.
func Parse(contents []byte) (*Credentials, error) {
	token, err := nkeys.ParseDecoratedJWT(contents)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoJWT, err)
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return nil, ErrNoJWT
	}

	kp, err := nkeys.ParseDecoratedNKey(contents)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSeed, err)
	}
	return &Credentials{jwt: token, kp: kp}, nil
}

// UserJWT returns the encoded user JWT.
func (c *Credentials) UserJWT() (string, error) {
	if c.jwt == "" {
		return "", ErrNoJWT
	}
	return c.jwt, nil
}

// Sign signs the server nonce with the user's private key.
func (c *Credentials) Sign(nonce []byte) ([]byte, error) {
	if c.kp == nil {
		return nil, ErrNoSeed
	}
	return c.kp.Sign(nonce)
}

// PublicKey returns the user's public nkey.
func (c *Credentials) PublicKey() (string, error) {
	if c.kp == nil {
		return "", ErrNoSeed
	}
	return c.kp.PublicKey()
}

// Claims verifies the JWT and checks it was issued to this key pair.
func (c *Credentials) Claims() (*UserClaims, error) {
	claims, err := VerifyUserJWT(c.jwt)
	if err != nil {
		return nil, err
	}
	pub, err := c.PublicKey()
	if err != nil {
		return nil, err
	}
	if claims.Subject != pub {
		return nil, fmt.Errorf("%w: subject %s does not match seed", ErrInvalidClaims, claims.Subject)
	}
	return claims, nil
}

// Wipe clears the private key from memory.
func (c *Credentials) Wipe() {
	if c.kp != nil {
		c.kp.Wipe()
		c.kp = nil
	}
}
