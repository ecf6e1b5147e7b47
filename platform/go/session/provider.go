package session

import (
	"context"
	"errors"
	"time"
)

// ErrIdentityUnavailable is returned when the identity provider is unreachable
// or refuses to yield a session, and no usable cached credential exists.
// Callers should treat it as "please sign in again".
var ErrIdentityUnavailable = errors.New("identity provider unavailable")

// User is the authenticated identity as reported by the provider.
type User struct {
	ID     string
	Email  string
	Claims map[string]string
}

// TokenPair is a freshly minted access/identity token pair.
type TokenPair struct {
	AccessToken   string
	IdentityToken string
	ExpiresAt     time.Time
}

// Provider is the minimal identity-provider surface the lifecycle manager
// depends on. Implementations must tolerate arbitrary latency; the manager
// bounds every call with its own timeout.
type Provider interface {
	// CurrentUser returns the authenticated identity backing this session.
	CurrentUser(ctx context.Context) (User, error)
	// SessionTokens mints or fetches the current token pair for the identity.
	SessionTokens(ctx context.Context) (TokenPair, error)
}
