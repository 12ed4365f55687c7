// Package token provides stateless signing and verification of access and
// refresh credentials. A Codec is a pure function of its inputs and keys:
// no persistence, safe for concurrent use from any goroutine.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for both credential kinds.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind distinguishes the two claim sets so a refresh credential can never be
// accepted where an access credential is required, and vice versa.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Verification failure taxonomy. Each is terminal; retrying cannot succeed.
var (
	ErrMalformed        = errors.New("token: malformed")
	ErrSignatureInvalid = errors.New("token: signature invalid")
	ErrExpired          = errors.New("token: expired")
)

// Claims is the signed claim set carried by both credential kinds.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the user ID the credential was issued to.
func (c *Claims) UserID() string { return c.RegisteredClaims.Subject }

// Config holds the codec keys and lifetimes.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// AccessKey signs access credentials. For HS256 it is the shared secret;
	// for Ed25519 it is the private key (seed or PEM).
	AccessKey []byte
	// RefreshKey optionally signs refresh credentials with an independent key
	// so compromise of one key space does not compromise the other. Empty
	// reuses AccessKey.
	RefreshKey []byte
	Issuer     string
}

// Codec signs and verifies bearer credentials.
type Codec struct {
	config     Config
	accessKey  any
	refreshKey any
	method     jwt.SigningMethod
}

// NewCodec validates the configuration and prepares the signing keys.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if len(cfg.AccessKey) == 0 {
		return nil, errors.New("token: access key required")
	}

	c := &Codec{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256, "":
		c.method = jwt.SigningMethodHS256
		c.accessKey = cfg.AccessKey
		c.refreshKey = cfg.AccessKey
		if len(cfg.RefreshKey) > 0 {
			c.refreshKey = cfg.RefreshKey
		}
	case MethodEd25519:
		c.method = jwt.SigningMethodEdDSA
		key, err := parseEdPrivateKey(cfg.AccessKey)
		if err != nil {
			return nil, err
		}
		c.accessKey = key
		c.refreshKey = key
		if len(cfg.RefreshKey) > 0 {
			rkey, err := parseEdPrivateKey(cfg.RefreshKey)
			if err != nil {
				return nil, err
			}
			c.refreshKey = rkey
		}
	default:
		return nil, fmt.Errorf("token: unsupported signing method %q", cfg.SigningMethod)
	}

	return c, nil
}

// SignAccess mints an access credential for subject, valid from now for the
// configured access TTL. Returns the signed credential and its expiry.
func (c *Codec) SignAccess(subject string, now time.Time) (string, time.Time, error) {
	return c.sign(subject, now, KindAccess, c.config.AccessTTL, c.accessKey)
}

// SignRefresh mints a refresh credential for subject, valid from now for the
// configured refresh TTL.
func (c *Codec) SignRefresh(subject string, now time.Time) (string, time.Time, error) {
	return c.sign(subject, now, KindRefresh, c.config.RefreshTTL, c.refreshKey)
}

func (c *Codec) sign(subject string, now time.Time, kind Kind, ttl time.Duration, key any) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and validates credential against expectedKind at time now.
// Failures map onto the codec taxonomy: [ErrMalformed] when the credential
// cannot be parsed or carries the wrong kind, [ErrSignatureInvalid] on a bad
// signature, [ErrExpired] once now is past expiry.
func (c *Codec) Verify(credential string, expectedKind Kind, now time.Time) (*Claims, error) {
	verifyKey := c.accessKey
	if expectedKind == KindRefresh {
		verifyKey = c.refreshKey
	}
	if c.method == jwt.SigningMethodEdDSA {
		if priv, ok := verifyKey.(ed25519.PrivateKey); ok {
			verifyKey = priv.Public()
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(*jwt.Token) (any, error) {
		return verifyKey, nil
	}, options...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Kind != expectedKind {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}
