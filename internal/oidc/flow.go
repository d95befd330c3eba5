package oidc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoIDToken is returned when the token response carries no id_token.
var ErrNoIDToken = errors.New("no id_token in token response")

// AuthFlow is a started SSO login. State and CodeVerifier must be kept in
// the caller's session until the callback arrives.
type AuthFlow struct {
	State        string
	CodeVerifier string
	AuthURL      string
}

// StartAuthFlow generates a fresh state and PKCE verifier and builds the
// authorization URL to redirect the browser to.
func (p *Provider) StartAuthFlow(ctx context.Context) (*AuthFlow, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := p.oauth2Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	return &AuthFlow{
		State:        state,
		CodeVerifier: verifier,
		AuthURL:      authURL,
	}, nil
}

// ExchangeCode redeems an authorization code and returns the verified ID
// token claims. Role claims that Keycloak only puts into the access token
// are merged in when absent from the ID token.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (map[string]interface{}, error) {
	token, err := p.oauth2Config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	mergeAccessTokenClaims(token.AccessToken, claims)

	return claims, nil
}

// mergeAccessTokenClaims copies role claims from a JWT access token into dst
// unless dst already has them. Opaque access tokens are ignored.
func mergeAccessTokenClaims(accessToken string, dst map[string]interface{}) {
	if accessToken == "" {
		return
	}

	atClaims, err := decodeJWTPayload(accessToken)
	if err != nil {
		slog.Debug("access token is not a JWT, skipping claim merge", "error", err)
		return
	}

	for _, key := range []string{"realm_access", "resource_access", "groups"} {
		if _, exists := dst[key]; exists {
			continue
		}
		if val, ok := atClaims[key]; ok {
			dst[key] = val
		}
	}
}

// decodeJWTPayload decodes the claims segment of a JWT without checking the
// signature. Only use it on tokens received directly from the token endpoint.
func decodeJWTPayload(token string) (map[string]interface{}, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("not a JWT: expected 3 segments, got %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT payload: %w", err)
	}

	return claims, nil
}

// generateCodeVerifier returns 32 random bytes as base64url (43 chars, the
// RFC 7636 minimum).
func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateCodeChallenge computes the S256 challenge for verifier.
func generateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
