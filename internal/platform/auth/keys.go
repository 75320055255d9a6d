package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	keysTTL = 5 * time.Minute
	// minRefresh throttles refetches triggered by unknown key ids.
	minRefresh = 30 * time.Second
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// JWK is one RSA signing key as published by the identity provider.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []JWK `json:"keys"`
}

// KeySet serves the provider's RSA verification keys. It refetches when a
// key id is unknown or the set is older than its TTL, but never more often
// than once per minRefresh.
type KeySet struct {
	url string

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

func NewKeySet(url string) *KeySet {
	return &KeySet{url: url, keys: map[string]*rsa.PublicKey{}}
}

func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[kid]
	fresh := time.Since(s.fetchedAt) < keysTTL
	if ok && fresh {
		return key, nil
	}
	if time.Since(s.attemptedAt) >= minRefresh || !fresh {
		s.attemptedAt = time.Now()
		if err := s.refresh(ctx); err != nil {
			if ok {
				// Provider unreachable; keep serving the key we have.
				return key, nil
			}
			return nil, err
		}
		key, ok = s.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (s *KeySet) refresh(ctx context.Context) error {
	var set jwkSet
	if err := getJSON(ctx, s.url, &set); err != nil {
		return fmt.Errorf("fetch signing keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	s.keys = keys
	s.fetchedAt = time.Now()
	return nil
}

// Keyfunc adapts the set for jwt.Parse.
func (s *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return s.Key(ctx, kid)
	}
}

func (k JWK) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

// DiscoverKeysURL reads jwks_uri from the issuer's OpenID configuration.
func DiscoverKeysURL(ctx context.Context, issuer string) (string, error) {
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	url := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	if err := getJSON(ctx, url, &doc); err != nil {
		return "", fmt.Errorf("openid discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("openid discovery: no jwks_uri")
	}
	return doc.JWKSURI, nil
}

func getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
