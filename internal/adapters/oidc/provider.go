package oidc

// Package oidc authenticates password sign-ins against an external OpenID Connect provider.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.Authenticator = (*Provider)(nil)

// Provider implements ports.Authenticator using the OAuth2 password grant.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	claims     ClaimMapping

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ClaimMapping holds JMESPath expressions evaluated against ID token and UserInfo claims.
type ClaimMapping struct {
	UserID        string
	Email         string
	EmailVerified string
}

// DefaultClaimMapping reads the standard OIDC claims.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{UserID: "sub", Email: "email", EmailVerified: "email_verified"}
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	// Claims overrides individual expressions; empty fields fall back to DefaultClaimMapping.
	Claims     ClaimMapping
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider discovers the issuer and validates the claim mapping.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	claims, err := resolveClaimMapping(config.Claims)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{httpClient: httpClient, claims: claims}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(p.clientContext(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email"}
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       scopes,
		Endpoint:     op.Endpoint(),
	}
	return p, nil
}

func resolveClaimMapping(in ClaimMapping) (ClaimMapping, error) {
	def := DefaultClaimMapping()
	out := ClaimMapping{
		UserID:        firstNonEmpty(in.UserID, def.UserID),
		Email:         firstNonEmpty(in.Email, def.Email),
		EmailVerified: firstNonEmpty(in.EmailVerified, def.EmailVerified),
	}
	for name, expr := range map[string]string{
		"user ID":        out.UserID,
		"email":          out.Email,
		"email verified": out.EmailVerified,
	} {
		if _, err := jmespath.Compile(expr); err != nil {
			return ClaimMapping{}, fmt.Errorf("invalid %s claim expression %q: %w", name, expr, err)
		}
	}
	return out, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Authenticate exchanges the credentials for tokens and maps the verified claims to an Identity.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if email == "" || password == "" {
		return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeInvalidCredential, "email and password are required")
	}

	cctx := p.clientContext(ctx)
	tok, err := p.config.PasswordCredentialsToken(cctx, email, password)
	if err != nil {
		return domainauth.Identity{}, mapTokenError(err)
	}

	fields, err := p.extractFromIDToken(cctx, tok)
	if err != nil {
		return domainauth.Identity{}, domainauth.WrapBackendError(domainauth.CodeInternal, "extract id_token", err)
	}
	if fields.userID == "" || fields.email == "" {
		if fillErr := p.fillFromUserInfo(cctx, tok, &fields); fillErr != nil {
			return domainauth.Identity{}, domainauth.WrapBackendError(domainauth.CodeInternal, "get user info", fillErr)
		}
	}
	if fields.userID == "" {
		return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeInternal, "provider returned no user ID")
	}
	if fields.email == "" {
		fields.email = email
	}

	return domainauth.Identity{
		UserID:        fields.userID,
		Email:         strings.ToLower(fields.email),
		EmailVerified: fields.emailVerified,
	}, nil
}

// Register is not supported; accounts are provisioned at the provider.
func (p *Provider) Register(context.Context, string, string) (domainauth.Identity, error) {
	return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeOperationNotAllowed,
		"sign-up is managed by the identity provider")
}

// Delete is not supported; accounts are removed at the provider.
func (p *Provider) Delete(context.Context, string) error {
	return domainauth.NewBackendError(domainauth.CodeOperationNotAllowed,
		"account deletion is managed by the identity provider")
}

type idFields struct {
	userID        string
	email         string
	emailVerified bool
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return p.mapClaims(claims)
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	if p.oidcProvider.UserInfoEndpoint() == "" {
		return nil
	}
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims map[string]any
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	extra, err := p.mapClaims(claims)
	if err != nil {
		return err
	}
	if f.userID == "" {
		f.userID = extra.userID
	}
	if f.email == "" {
		f.email = extra.email
		f.emailVerified = extra.emailVerified
	}
	return nil
}

// mapClaims evaluates the configured expressions against a decoded claim set.
func (p *Provider) mapClaims(claims map[string]any) (idFields, error) {
	var f idFields
	var err error
	if f.userID, err = searchString(p.claims.UserID, claims); err != nil {
		return f, err
	}
	if f.email, err = searchString(p.claims.Email, claims); err != nil {
		return f, err
	}
	v, err := jmespath.Search(p.claims.EmailVerified, claims)
	if err != nil {
		return f, fmt.Errorf("evaluate %q: %w", p.claims.EmailVerified, err)
	}
	f.emailVerified = truthy(v)
	return f, nil
}

func searchString(expr string, claims map[string]any) (string, error) {
	v, err := jmespath.Search(expr, claims)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case float64:
		return fmt.Sprintf("%.0f", s), nil
	default:
		return fmt.Sprint(s), nil
	}
}

// truthy accepts JSON booleans and the "true" string some providers emit.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

// mapTokenError translates token endpoint failures into backend error codes.
func mapTokenError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch {
		case rerr.ErrorCode == "invalid_grant":
			return domainauth.WrapBackendError(domainauth.CodeInvalidCredential, "invalid credentials", err)
		case rerr.ErrorCode == "unauthorized_client", rerr.ErrorCode == "unsupported_grant_type":
			return domainauth.WrapBackendError(domainauth.CodeOperationNotAllowed, "password sign-in is not enabled", err)
		case rerr.ErrorCode == "slow_down",
			rerr.Response != nil && rerr.Response.StatusCode == http.StatusTooManyRequests:
			return domainauth.WrapBackendError(domainauth.CodeTooManyRequests, "too many sign-in attempts", err)
		}
		return domainauth.WrapBackendError(domainauth.CodeInternal, "token request failed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domainauth.WrapBackendError(domainauth.CodeNetworkRequestFail, "identity provider unreachable", err)
	}
	return domainauth.WrapBackendError(domainauth.CodeInternal, "token request failed", err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
