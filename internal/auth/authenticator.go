package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"talkie/internal/creds"

	"github.com/rs/zerolog"
)

// StatusTokenExpired is the remote service's signal that the access token
// expired but the session is recoverable via refresh.
const StatusTokenExpired = 419

var (
	// ErrUnauthorized is terminal for the current request and drives logout.
	ErrUnauthorized = errors.New("unauthorized")
)

// Authenticator attaches credentials to outgoing requests and reacts to auth
// failures: refresh on an expired access token, logout on an unrecoverable
// one. The logout callback runs on its own mutex-serialized goroutine so
// observers never run inside a request's call stack.
type Authenticator struct {
	store    creds.Store
	coord    *Coordinator
	refresh  RefreshFunc
	onLogout func()
	log      zerolog.Logger

	logoutMu sync.Mutex
}

func NewAuthenticator(store creds.Store, coord *Coordinator, refresh RefreshFunc, onLogout func(), logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		store:    store,
		coord:    coord,
		refresh:  refresh,
		onLogout: onLogout,
		log:      logger,
	}
}

// Apply sets the Authorization header from the stored access token. A
// missing token is not an error: the request proceeds unauthenticated.
func (a *Authenticator) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.store.ReadAccess(ctx)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// RefreshCredentials reacts to a 419: it runs the refresh operation through
// the coordinator. On failure the session is over — the store is cleared,
// the logout signal fires, and the caller must not retry.
func (a *Authenticator) RefreshCredentials(ctx context.Context) error {
	if _, err := a.coord.Refresh(ctx, a.refresh); err != nil {
		a.log.Warn().Err(err).Msg("token refresh failed, forcing logout")
		a.forceLogout(ctx)
		return fmt.Errorf("%w: token refresh failed: %v", ErrUnauthorized, err)
	}
	return nil
}

// Unauthorized reacts to an unrecoverable auth status (401/418): clears the
// credential store and fires the logout signal exactly once for this event.
func (a *Authenticator) Unauthorized(ctx context.Context) error {
	a.forceLogout(ctx)
	return ErrUnauthorized
}

func (a *Authenticator) forceLogout(ctx context.Context) {
	if err := a.store.Clear(ctx); err != nil {
		a.log.Error().Err(err).Msg("failed to clear credentials on logout")
	}
	if a.onLogout == nil {
		return
	}
	go func() {
		a.logoutMu.Lock()
		defer a.logoutMu.Unlock()
		a.onLogout()
	}()
}
