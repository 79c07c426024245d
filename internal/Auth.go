package internal

import "time"

// Credential is the opaque bearer credential the engine consumes. The
// interactive sign-in that produces it lives behind the Authenticator
// boundary; the engine never performs sign-in itself.
type Credential struct {
	AccessToken string
	AccountID   string
	ExpiresAt   time.Time
}

// Expired reports whether the credential's lifetime has elapsed. A zero
// ExpiresAt means the issuer did not declare a lifetime.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Authenticator is the external collaborator that owns sign-in and token
// refresh. CurrentToken fails with an auth error when the user never
// completed sign-in.
type Authenticator interface {
	CurrentToken() (*Credential, error)
	Refresh(cred *Credential) (*Credential, error)
}

// StaticAuthenticator serves a fixed credential. It backs tests and CLI
// wiring where the token was obtained out of band.
type StaticAuthenticator struct {
	Credential *Credential
}

func (a *StaticAuthenticator) CurrentToken() (*Credential, error) {
	if a.Credential == nil || a.Credential.AccessToken == "" {
		return nil, NewError(KindAuth, "not authenticated: no credential available")
	}
	return a.Credential, nil
}

func (a *StaticAuthenticator) Refresh(cred *Credential) (*Credential, error) {
	return nil, NewError(KindAuth, "static credential cannot be refreshed")
}
