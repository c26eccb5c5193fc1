package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/config"
)

// Identity is the outcome of credential verification alone, before any
// membership lookup.
type Identity struct {
	Subject string
	Email   string
}

// TokenAuthenticator verifies bearer credentials against the identity
// provider's published signing keys. The key set is fetched lazily and
// cached for the lifetime of the process; a rotated key not yet in cache
// surfaces as one failed verification until the set refreshes.
type TokenAuthenticator struct {
	keyFn    func(t *jwt.Token) (any, error)
	issuer   string
	audience string
}

func NewTokenAuthenticatorWithKeyFn(keyFn func(t *jwt.Token) (any, error)) *TokenAuthenticator {
	return &TokenAuthenticator{keyFn: keyFn}
}

func NewTokenAuthenticator(authConfig config.Auth) (*TokenAuthenticator, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{authConfig.JwkCertURL})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity provider public keys: %w", err)
	}

	return &TokenAuthenticator{
		keyFn:    k.Keyfunc,
		issuer:   authConfig.Issuer,
		audience: authConfig.Audience,
	}, nil
}

// Authenticate verifies the token signature, expiry, issuer and audience
// and returns the identity it carries. Every failure mode collapses into
// a single error so callers cannot learn which check failed.
func (a *TokenAuthenticator) Authenticate(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	parser := jwt.NewParser(opts...)
	t, err := parser.Parse(token, a.keyFn)
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or verify token", "error", err)
		return Identity{}, fmt.Errorf("failed to authenticate token: %w", err)
	}

	if !t.Valid {
		return Identity{}, errors.New("failed to parse or validate token")
	}

	return parseIdentity(t)
}

func parseIdentity(token *jwt.Token) (Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("failed to parse jwt token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, errors.New("token has no subject")
	}

	email, _ := claims["email"].(string)

	return Identity{Subject: sub, Email: email}, nil
}
