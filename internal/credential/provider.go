package credential

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/instrumentation"
)

const (
	// DefaultTenant accepts work, school and personal accounts.
	DefaultTenant = "common"

	// DefaultTokenTimeout bounds calls to the token endpoint.
	DefaultTokenTimeout = 30 * time.Second

	// DefaultTokenLifetime is assumed when the provider reports no expiry.
	DefaultTokenLifetime = time.Hour
)

// Scopes are the delegated permissions requested at sign-in.
var Scopes = []string{
	"openid",
	"profile",
	"email",
	"offline_access",
	"Mail.Read",
	"Mail.ReadWrite",
	"MailboxSettings.Read",
}

// ProviderConfig configures the Microsoft identity platform client.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string

	// Endpoint overrides the Azure AD endpoint derived from TenantID.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token requests. Defaults to a client with
	// DefaultTokenTimeout.
	HTTPClient *http.Client
}

// Provider performs the authorization-code flow and token refresh against
// the Microsoft identity platform.
type Provider struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewProvider validates cfg and builds a Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, apperr.ConfigurationMissing("Microsoft OAuth not configured")
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		tenant := cfg.TenantID
		if tenant == "" {
			tenant = DefaultTenant
		}
		endpoint = microsoft.AzureADEndpoint(tenant)
	}
	// Sending credentials in the form body avoids the library's auto-detect
	// retry, so every refresh is a single request.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTokenTimeout}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
		},
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL returns the sign-in URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
}

// Exchange trades an authorization code for a grant.
func (p *Provider) Exchange(ctx context.Context, code string) (Grant, error) {
	tok, err := p.oauth.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return Grant{}, apperr.Upstream("oauth."+instrumentation.OperationExchangeToken, retrieveStatus(err), err)
	}
	return grantFromToken(tok, time.Now()), nil
}

// Refresh makes exactly one refresh-token request.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	if refreshToken == "" {
		return Grant{}, errors.New("no refresh token stored")
	}

	// An empty access token forces the token source to refresh immediately.
	src := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Grant{}, apperr.Upstream("oauth."+instrumentation.OperationRefreshToken, retrieveStatus(err), err)
	}
	return grantFromToken(tok, time.Now()), nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func grantFromToken(tok *oauth2.Token, now time.Time) Grant {
	return Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Lifetime:     tokenLifetime(tok, now),
	}
}

// tokenLifetime prefers the raw expires_in value over the library-computed
// Expiry so the caller's clock decides the absolute expiry.
func tokenLifetime(tok *oauth2.Token, now time.Time) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultTokenLifetime
}

func retrieveStatus(err error) int {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}
