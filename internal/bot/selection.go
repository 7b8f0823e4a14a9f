package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/store"
)

// ErrSelectionExpired means the token of a quality selection no longer maps
// to a URL; the user has to send the link again.
var ErrSelectionExpired = errors.New("selection expired")

// Selections caches probed URLs under short-lived opaque tokens, so a quality
// selection arriving later can recover the URL it refers to without the
// transport carrying the full URL around.
type Selections struct {
	store store.Store
	ttl   time.Duration
}

// NewSelections creates a selection cache with the given token lifetime.
func NewSelections(s store.Store, ttl time.Duration) *Selections {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Selections{store: s, ttl: ttl}
}

// Put caches url and returns its token.
func (s *Selections) Put(ctx context.Context, url string) (string, error) {
	token := uuid.NewString()
	if err := s.store.Set(ctx, "selection:"+token, url, s.ttl); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}
	return token, nil
}

// Get resolves a token back to its URL.
func (s *Selections) Get(ctx context.Context, token string) (string, error) {
	url, err := s.store.Get(ctx, "selection:"+token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrSelectionExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}
	return url, nil
}

// Delete consumes a token. Tokens also lapse on their own via the TTL.
func (s *Selections) Delete(ctx context.Context, token string) {
	if err := s.store.Del(ctx, "selection:"+token); err != nil {
		// The TTL will collect it.
		return
	}
}
