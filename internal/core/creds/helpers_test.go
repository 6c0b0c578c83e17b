package creds

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nkeys"
)

// issueUserJWT signs claims with an account key pair. The issuer is set
// from the key.
func issueUserJWT(account nkeys.KeyPair, claims *UserClaims) (string, error) {
	iss, err := account.PublicKey()
	if err != nil {
		return "", err
	}
	claims.Issuer = iss
	return jwt.NewWithClaims(SigningMethodNKey, claims).SignedString(account)
}

// formatCreds renders a decorated credentials file.
func formatCreds(userJWT string, seed []byte) []byte {
	var b strings.Builder
	b.WriteString("-----BEGIN NATS USER JWT-----\n")
	b.WriteString(userJWT)
	b.WriteString("\n------END NATS USER JWT------\n\n")
	b.WriteString("************************* IMPORTANT *************************\n")
	b.WriteString("NKEY Seed printed below can be used to sign and prove identity.\n")
	b.WriteString("NKEYs are sensitive and should be treated as secrets.\n\n")
	b.WriteString("-----BEGIN USER NKEY SEED-----\n")
	b.Write(seed)
	b.WriteString("\n------END USER NKEY SEED------\n\n")
	b.WriteString("*************************************************************\n")
	return []byte(b.String())
}
