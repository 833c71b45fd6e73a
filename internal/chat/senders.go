package chat

import (
	"context"
	"time"

	"talkie/internal/models"

	"github.com/c-pro/geche"
)

const (
	senderTTL          = 1 * time.Hour
	senderCleanupEvery = time.Minute
)

// senderRegistry remembers profiles of recently seen senders, harvested from
// inbound messages. The notification layer resolves nicknames and avatars
// from here instead of hitting the network.
type senderRegistry struct {
	cache geche.Geche[string, models.Sender]
}

func newSenderRegistry(ctx context.Context) *senderRegistry {
	return &senderRegistry{
		cache: geche.NewMapTTLCache[string, models.Sender](ctx, senderTTL, senderCleanupEvery),
	}
}

func (r *senderRegistry) remember(s models.Sender) {
	if s.UserID == "" {
		return
	}
	r.cache.Set(s.UserID, s)
}

func (r *senderRegistry) get(userID string) (models.Sender, bool) {
	s, err := r.cache.Get(userID)
	if err != nil {
		return models.Sender{}, false
	}
	return s, true
}
