// Package jwttest mints RS256 access tokens shaped like the provider's and
// serves the matching JWKS, for tests and local fakes.
package jwttest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
}

// Issuer signs tokens with a throwaway RSA key.
type Issuer struct {
	Issuer string
	KeyID  string
	Now    func() time.Time

	key *rsa.PrivateKey
}

func NewIssuer(issuer string) (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &Issuer{
		Issuer: issuer,
		KeyID:  "key_" + uuid.NewString(),
		Now:    time.Now,
		key:    key,
	}, nil
}

// AccessToken returns a token for sub that expires ttl from Now. A negative
// ttl yields an already expired token. sid is omitted when empty.
func (i *Issuer) AccessToken(sub, sid string, ttl time.Duration) (string, error) {
	now := i.Now()
	claims := jwtlib.MapClaims{
		"iss": i.Issuer,
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if sid != "" {
		claims["sid"] = sid
	}
	return i.Sign(claims)
}

// Sign signs arbitrary claims.
func (i *Issuer) Sign(claims jwtlib.MapClaims) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = i.KeyID

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) JWKS() JWKS {
	pub := i.key.PublicKey
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: i.KeyID,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

// JWKSHandler serves JWKS() as JSON.
func (i *Issuer) JWKSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(i.JWKS())
	})
}
