package credential

import (
	"context"
	"time"
)

// Credential is the stored identity-provider grant for one mailbox owner.
// There is at most one Credential per UserID.
type Credential struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the access token expiry lies strictly before now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// Session is the resolved caller identity with a currently valid access token.
type Session struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AccessToken string `json:"-"`
}

func sessionFor(c Credential) Session {
	return Session{
		UserID:      c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		AccessToken: c.AccessToken,
	}
}

// Store persists credentials. Lookups of unknown tokens return an
// apperr.NotFound error.
type Store interface {
	CredentialByToken(ctx context.Context, accessToken string) (Credential, error)
	UpsertCredential(ctx context.Context, c Credential) error
	DeleteCredentialByToken(ctx context.Context, accessToken string) error
}

// Grant is the token material returned by the identity provider.
type Grant struct {
	AccessToken  string
	RefreshToken string
	// Lifetime is the provider-reported validity of AccessToken.
	Lifetime time.Duration
}

// Refresher exchanges a refresh token for a new grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}
