package envclient

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = time.Hour

// serviceAccountKey is the subset of the downloaded service-account JSON
// file the signer needs.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	KeyID       string `json:"private_key_id"`
}

// tokenSource signs short-lived service JWTs for the provisioning API
// and caches the signed token until shortly before expiry. Caching is
// mandatory: signing is an RSA operation and every remote call goes
// through here.
type tokenSource struct {
	audience string
	email    string
	keyID    string
	key      *rsa.PrivateKey

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(serviceAccountFile, audience string) (*tokenSource, error) {
	data, err := os.ReadFile(serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	var sa serviceAccountKey
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account file: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &tokenSource{
		audience: audience,
		email:    sa.ClientEmail,
		keyID:    sa.KeyID,
		key:      key,
	}, nil
}

// Token returns a valid bearer token, re-signing only when the cached
// one is about to expire.
func (ts *tokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	if ts.token != "" && now.Before(ts.expires.Add(-time.Minute)) {
		return ts.token, nil
	}

	expires := now.Add(tokenLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    ts.email,
		Subject:   ts.email,
		Audience:  jwt.ClaimStrings{ts.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ts.keyID
	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	ts.token = signed
	ts.expires = expires
	return signed, nil
}
