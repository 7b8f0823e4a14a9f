package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/store"
)

// Preferences persists each user's preferred quality tier. The preference is
// refreshed on every explicit selection, so it tracks the last tier the user
// actually picked.
type Preferences struct {
	store store.Store
}

// NewPreferences creates a preference reader/writer on the given store.
func NewPreferences(s store.Store) *Preferences {
	return &Preferences{store: s}
}

func prefKey(userID int64) string {
	return "prefs:user:" + strconv.FormatInt(userID, 10) + ":tier"
}

// Tier returns the user's preferred tier. The second return value is false
// when no preference is stored.
func (p *Preferences) Tier(ctx context.Context, userID int64) (model.Tier, bool, error) {
	raw, err := p.store.Get(ctx, prefKey(userID))
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}

	tier, err := model.ParseTier(raw)
	if err != nil {
		// A stored value from an older tier set; treat as unset.
		return 0, false, nil
	}
	return tier, true, nil
}

// SetTier stores the user's preferred tier.
func (p *Preferences) SetTier(ctx context.Context, userID int64, tier model.Tier) error {
	if err := p.store.Set(ctx, prefKey(userID), tier.String(), 0); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageFailure, err)
	}
	return nil
}
