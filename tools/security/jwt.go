package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and TTL parameters.
type Options struct {
	Secret []byte        // HMAC key
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token validity (default 2h)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// IdentityClaims is the subset of claims the chat client cares about.
type IdentityClaims struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// Generate signs a token carrying the identity claims. Mostly used by tests
// and dev tooling; production tokens come from the auth service.
func Generate(opts Options, c IdentityClaims) (string, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub":      c.UserID,
		"username": c.Username,
		"isAdmin":  c.IsAdmin,
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(opts.TTL).Unix(),
	}
	return jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
}

// Verify validates signature and expiry and returns the identity claims.
func Verify(opts Options, token string) (*IdentityClaims, error) {
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, err
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only.
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("claims type mismatch")
	}
	return fromMapClaims(claims), nil
}

// Extract reads the identity claims without verifying the signature. The
// client holds its own token the way a browser holds localStorage userInfo;
// the server remains the authority and rejects tampered tokens on use.
func Extract(token string) (*IdentityClaims, error) {
	parser := jwtlib.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("claims type mismatch")
	}
	return fromMapClaims(claims), nil
}

func fromMapClaims(claims jwtlib.MapClaims) *IdentityClaims {
	out := &IdentityClaims{}
	if v, ok := claims["sub"].(string); ok {
		out.UserID = v
	}
	if v, ok := claims["username"].(string); ok {
		out.Username = v
	}
	if v, ok := claims["isAdmin"].(bool); ok {
		out.IsAdmin = v
	}
	return out
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
