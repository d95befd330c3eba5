// Package oidc adds single sign-on to the login page: an authorization code
// flow with PKCE against an OpenID Connect provider (Keycloak in the lab
// setup), whose ID token claims are mapped onto a local username and role.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
)

// Provider talks to the identity provider discovered from the issuer URL.
type Provider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	mapper       *ClaimMapper
}

// NewProvider runs discovery against cfg.Issuer and prepares the OAuth2
// client and ID token verifier.
func NewProvider(ctx context.Context, cfg *config.OIDCConfig) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &Provider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		mapper:   NewClaimMapper(cfg),
	}, nil
}

// Authenticate finishes the flow started by StartAuthFlow: it redeems code,
// verifies the ID token and maps its claims to a local identity.
func (p *Provider) Authenticate(ctx context.Context, code, codeVerifier string) (Identity, error) {
	claims, err := p.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return Identity{}, err
	}
	return p.mapper.Map(claims)
}
