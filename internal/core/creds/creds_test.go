package creds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	account nkeys.KeyPair
	user    nkeys.KeyPair
	userPub string
	seed    []byte
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	account, err := nkeys.CreateAccount()
	require.NoError(t, err)
	user, err := nkeys.CreateUser()
	require.NoError(t, err)
	pub, err := user.PublicKey()
	require.NoError(t, err)
	seed, err := user.Seed()
	require.NoError(t, err)
	return fixture{account: account, user: user, userPub: pub, seed: seed}
}

func (f fixture) issue(t *testing.T, expires time.Time) string {
	t.Helper()
	claims := &UserClaims{
		Name: "svc-orders",
		Nats: map[string]any{"type": "user", "version": 2},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  f.userPub,
			IssuedAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ID:       "jti-1",
		},
	}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	token, err := issueUserJWT(f.account, claims)
	require.NoError(t, err)
	return token
}

func TestParse_RoundTrip(t *testing.T) {
	f := newFixture(t)
	token := f.issue(t, time.Time{})

	c, err := Parse(formatCreds(token, f.seed))
	require.NoError(t, err)

	got, err := c.UserJWT()
	require.NoError(t, err)
	assert.Equal(t, token, got)

	pub, err := c.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, f.userPub, pub)

	claims, err := c.Claims()
	require.NoError(t, err)
	assert.Equal(t, "svc-orders", claims.Name)
	assert.Equal(t, "user", claims.Nats["type"])
	accountPub, _ := f.account.PublicKey()
	assert.Equal(t, accountPub, claims.Issuer)
}

func TestSign_VerifiesWithUserKey(t *testing.T) {
	f := newFixture(t)
	c, err := Parse(formatCreds(f.issue(t, time.Time{}), f.seed))
	require.NoError(t, err)

	nonce := []byte("server-nonce-123")
	sig, err := c.Sign(nonce)
	require.NoError(t, err)

	pubOnly, err := nkeys.FromPublicKey(f.userPub)
	require.NoError(t, err)
	assert.NoError(t, pubOnly.Verify(nonce, sig))
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "user.creds")
	require.NoError(t, os.WriteFile(path, formatCreds(f.issue(t, time.Time{}), f.seed), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	_, err = c.Claims()
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.creds"))
	assert.Error(t, err)
}

func TestParse_Missing(t *testing.T) {
	f := newFixture(t)

	_, err := Parse([]byte("not a credentials file"))
	assert.ErrorIs(t, err, ErrNoJWT)

	onlyJWT := "-----BEGIN NATS USER JWT-----\n" + f.issue(t, time.Time{}) + "\n------END NATS USER JWT------\n"
	_, err = Parse([]byte(onlyJWT))
	assert.ErrorIs(t, err, ErrNoSeed)
}

func TestVerifyUserJWT_Expired(t *testing.T) {
	f := newFixture(t)
	_, err := VerifyUserJWT(f.issue(t, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyUserJWT_WrongIssuerSignature(t *testing.T) {
	f := newFixture(t)
	other, err := nkeys.CreateAccount()
	require.NoError(t, err)

	claims := &UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: f.userPub}}
	token, err := issueUserJWT(other, claims)
	require.NoError(t, err)

	// Re-sign the same claims with another key but keep the original issuer.
	accountPub, _ := f.account.PublicKey()
	claims.Issuer = accountPub
	forged, err := jwt.NewWithClaims(SigningMethodNKey, claims).SignedString(other)
	require.NoError(t, err)

	_, err = VerifyUserJWT(token)
	assert.NoError(t, err)
	_, err = VerifyUserJWT(forged)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerifyUserJWT_SubjectMustBeUser(t *testing.T) {
	f := newFixture(t)
	accountPub, _ := f.account.PublicKey()
	token, err := issueUserJWT(f.account, &UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: accountPub}})
	require.NoError(t, err)

	_, err = VerifyUserJWT(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestClaims_SeedMismatch(t *testing.T) {
	f := newFixture(t)
	g := newFixture(t)

	c, err := Parse(formatCreds(f.issue(t, time.Time{}), g.seed))
	require.NoError(t, err)
	_, err = c.Claims()
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestSigningMethod_RejectsWrongKeyType(t *testing.T) {
	_, err := SigningMethodNKey.Sign("a.b", "not a key")
	assert.ErrorIs(t, err, jwt.ErrInvalidKeyType)
	assert.ErrorIs(t, SigningMethodNKey.Verify("a.b", nil, 42), jwt.ErrInvalidKeyType)
	assert.Equal(t, AlgNKey, jwt.GetSigningMethod(AlgNKey).Alg())
}

func TestWipe(t *testing.T) {
	f := newFixture(t)
	c, err := Parse(formatCreds(f.issue(t, time.Time{}), f.seed))
	require.NoError(t, err)

	c.Wipe()
	_, err = c.Sign([]byte("n"))
	assert.ErrorIs(t, err, ErrNoSeed)
}
