package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gostash/tierstore/internal/router"
)

var (
	// ErrSecureStorageUnavailable is returned when the auth token
	// cannot be persisted to the secure backend. This is the one
	// failure that must surface to the user: the device lacks the
	// required security capability and the token was NOT silently
	// persisted anywhere else.
	ErrSecureStorageUnavailable = errors.New("secure storage unavailable: device lacks the required security capability")

	// ErrEmptyToken is returned when an empty token is stored.
	ErrEmptyToken = errors.New("token cannot be empty")
)

// Guard is the stricter policy wrapper for the single credential key.
// The router's policy table already confines the credential class to
// the secure tier; the guard's job is to turn that tier's failure
// into an explicit, actionable error instead of a silent degrade.
type Guard struct {
	router *router.Router
	key    string
}

// NewGuard creates a token guard over the router for the given
// credential key.
func NewGuard(r *router.Router, credentialKey string) *Guard {
	return &Guard{router: r, key: credentialKey}
}

// Set persists the auth token. It must succeed against the secure
// backend or fail loudly; it never falls back to the general tier.
func (g *Guard) Set(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := g.router.Write(ctx, g.key, token, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrSecureStorageUnavailable, err)
	}
	return nil
}

// Get reads the auth token from the secure tier only. Absent or
// unavailable both yield an empty token; a legacy value on the
// general tier is never consulted.
func (g *Guard) Get(ctx context.Context) string {
	value, found, err := g.router.Read(ctx, g.key)
	if err != nil {
		logrus.Debug("tierstore: token read degraded to absent: ", err)
		return ""
	}
	if !found {
		return ""
	}
	return value
}

// Clear deletes the token from the secure tier along with any legacy
// copy on the general tier. Partial failures are aggregated but do not
// abort the sweep.
func (g *Guard) Clear(ctx context.Context) error {
	return g.router.Remove(ctx, g.key)
}
