package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// TokenSource mints a fresh bearer token; callers typically wrap an
// external identity provider's client credentials exchange.
type TokenSource func(ctx context.Context) (string, error)

// JWTAuthenticator caches the last token it minted and its parsed
// expiry, re-minting only once the cached token is within refreshBefore of
// expiring. The HTTP transport sends the token as the request's password
// with an empty username, the convention the management/query HTTP
// services expect for bearer auth.
type JWTAuthenticator struct {
	Source         TokenSource
	RefreshBefore  time.Duration

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

func (a *JWTAuthenticator) Credentials(ctx context.Context, _, _ string) (corebase.UserPassPair, error) {
	token, err := a.token(ctx)
	if err != nil {
		return corebase.UserPassPair{}, err
	}
	return corebase.UserPassPair{Username: "", Password: token}, nil
}

func (JWTAuthenticator) Certificate(context.Context, string) (*corebase.ClientCertificate, error) {
	return nil, nil
}

func (JWTAuthenticator) SupportsTLS() bool { return true }

func (a *JWTAuthenticator) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	refreshBefore := a.RefreshBefore
	if refreshBefore <= 0 {
		refreshBefore = 30 * time.Second
	}
	if a.cached != "" && time.Now().Add(refreshBefore).Before(a.expiresAt) {
		return a.cached, nil
	}

	token, err := a.Source(ctx)
	if err != nil {
		return "", corebase.New(corebase.KindAuthenticationFailure, "token source failed", err)
	}

	a.cached = token
	a.expiresAt = parseExpiry(token)
	return token, nil
}

// parseExpiry reads the "exp" claim without verifying the signature — this
// authenticator trusts its own TokenSource, it only needs the expiry to
// decide when to refresh.
func parseExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}
	}
	return time.Unix(int64(exp), 0)
}
