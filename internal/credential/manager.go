package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/graph"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// Caller-facing messages for session failures.
const (
	MsgInvalidToken  = "invalid or expired token"
	MsgRefreshFailed = "token expired and refresh failed"
)

// IdentityProvider performs the authorization-code exchange and refresh.
type IdentityProvider interface {
	Refresher
	Exchange(ctx context.Context, code string) (Grant, error)
}

// ProfileFetcher resolves the profile behind an access token.
type ProfileFetcher interface {
	Me(ctx context.Context, accessToken string) (graph.Profile, error)
}

// Manager resolves caller tokens into sessions, refreshing expired access
// tokens on the way.
//
// Concurrent refreshes for the same user are not coordinated: both requests
// refresh and the last upsert wins.
type Manager struct {
	store    Store
	idp      IdentityProvider
	profiles ProfileFetcher
	now      func() time.Time
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithProfiles sets the profile source used by Complete.
func WithProfiles(p ProfileFetcher) ManagerOption {
	return func(m *Manager) { m.profiles = p }
}

// NewManager creates a Manager. idp may be nil when sign-in is not
// configured; expired credentials then fail to refresh.
func NewManager(store Store, idp IdentityProvider, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		idp:    idp,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveSession maps an access token to a Session. An expired credential is
// refreshed once; on failure nothing is written and Unauthorized is returned.
func (m *Manager) ResolveSession(ctx context.Context, accessToken string) (Session, error) {
	if accessToken == "" {
		return Session{}, apperr.Unauthorized(MsgInvalidToken)
	}

	cred, err := m.store.CredentialByToken(ctx, accessToken)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Session{}, apperr.Unauthorized(MsgInvalidToken)
		}
		return Session{}, fmt.Errorf("looking up credential: %w", err)
	}

	now := m.now()
	if !cred.Expired(now) {
		return sessionFor(cred), nil
	}

	logger := logging.WithOperation(logging.WithUser(m.logger, cred.Email), "credential.refresh")
	refreshed, err := m.refresh(ctx, cred, now)
	if err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		logger.WarnContext(ctx, "token refresh failed", logging.Err(err))
		return Session{}, apperr.Unauthorized(MsgRefreshFailed)
	}

	if err := m.store.UpsertCredential(ctx, refreshed); err != nil {
		return Session{}, fmt.Errorf("persisting refreshed credential: %w", err)
	}
	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	logger.DebugContext(ctx, "token refreshed", slog.Time("expires_at", refreshed.ExpiresAt))

	return sessionFor(refreshed), nil
}

func (m *Manager) refresh(ctx context.Context, cred Credential, now time.Time) (Credential, error) {
	if m.idp == nil {
		return Credential{}, apperr.ConfigurationMissing("Microsoft OAuth not configured")
	}
	grant, err := m.idp.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return Credential{}, err
	}
	if grant.AccessToken == "" {
		return Credential{}, fmt.Errorf("provider returned an empty access token")
	}

	cred.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		cred.RefreshToken = grant.RefreshToken
	}
	cred.ExpiresAt = now.Add(grant.Lifetime)
	return cred, nil
}

// Complete finishes sign-in: it exchanges the authorization code, loads the
// user's profile and stores the credential keyed on the user id.
func (m *Manager) Complete(ctx context.Context, code string) (Credential, error) {
	if code == "" {
		return Credential{}, apperr.InvalidRequest("Authorization code missing")
	}
	if m.idp == nil || m.profiles == nil {
		return Credential{}, apperr.ConfigurationMissing("Microsoft OAuth not configured")
	}

	cred, err := m.complete(ctx, code)
	if err != nil {
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return Credential{}, err
	}
	m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	m.logger.InfoContext(ctx, "user signed in", logging.UserHash(cred.Email))
	return cred, nil
}

func (m *Manager) complete(ctx context.Context, code string) (Credential, error) {
	grant, err := m.idp.Exchange(ctx, code)
	if err != nil {
		return Credential{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	profile, err := m.profiles.Me(ctx, grant.AccessToken)
	if err != nil {
		return Credential{}, fmt.Errorf("fetching profile: %w", err)
	}
	if profile.ID == "" {
		return Credential{}, apperr.Malformed("graph.get_profile", fmt.Errorf("profile has no id"))
	}

	now := m.now()
	cred := Credential{
		UserID:       profile.ID,
		Email:        profile.EmailAddress(),
		DisplayName:  profile.Name(),
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    now.Add(grant.Lifetime),
		CreatedAt:    now,
	}
	if err := m.store.UpsertCredential(ctx, cred); err != nil {
		return Credential{}, fmt.Errorf("storing credential: %w", err)
	}
	return cred, nil
}

// Logout forgets the credential behind accessToken. Unknown tokens are not
// an error.
func (m *Manager) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return apperr.Unauthorized(MsgInvalidToken)
	}
	if err := m.store.DeleteCredentialByToken(ctx, accessToken); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}
