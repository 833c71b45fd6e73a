package auth

import (
	"context"
	"fmt"

	"talkie/internal/creds"
	"talkie/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RefreshFunc performs the actual refresh call against the remote service
// using the stored refresh token and returns the new pair.
type RefreshFunc func(ctx context.Context) (creds.TokenPair, error)

const refreshKey = "token-refresh"

// Coordinator collapses concurrent refresh attempts into a single underlying
// call. Every caller that arrives while a refresh is in flight is suspended
// and resolved with the same pair or the same error. The new pair is written
// to the credential store before any waiter is released.
type Coordinator struct {
	store creds.Store
	group singleflight.Group
	log   zerolog.Logger
}

func NewCoordinator(store creds.Store, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store: store,
		log:   logger,
	}
}

// Refresh runs perform under single-flight. Failure is not retried here; the
// caller decides how to react (typically by forcing a logout).
//
// The underlying call runs with the context of the caller that started it;
// later waiters ride along on that call.
func (c *Coordinator) Refresh(ctx context.Context, perform RefreshFunc) (creds.TokenPair, error) {
	v, err, shared := c.group.Do(refreshKey, func() (interface{}, error) {
		pair, err := perform(ctx)
		if err != nil {
			return creds.TokenPair{}, err
		}
		if err := c.store.Write(ctx, pair); err != nil {
			return creds.TokenPair{}, fmt.Errorf("failed to store refreshed tokens: %w", err)
		}
		metrics.TokenRefreshes.Inc()
		return pair, nil
	})
	if err != nil {
		return creds.TokenPair{}, err
	}
	if shared {
		c.log.Debug().Msg("token refresh shared with concurrent caller")
	}
	return v.(creds.TokenPair), nil
}
