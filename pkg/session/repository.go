package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shitan-ai/shitan/internal/observability"
	"github.com/shitan-ai/shitan/pkg/conversation"
)

// Repository is the typed view over a Store: it owns the JSON encoding of the
// conversation state so callers never touch raw documents, and it self-heals
// whatever it decodes before handing it out.
type Repository struct {
	store Store
}

// NewRepository wraps a Store.
func NewRepository(store Store) *Repository {
	observability.EnsureRegistered()
	return &Repository{store: store}
}

// Load returns the session's conversation state. A missing session yields a
// freshly seeded state rather than an error; a corrupt document is discarded
// the same way, since the browser can always start over.
func (r *Repository) Load(ctx context.Context, sid string) (*conversation.State, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	raw, err := r.store.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return conversation.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var state conversation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Warn().Str("sid", sid).Err(err).Msg("Discarding undecodable session state")
		return conversation.NewState(), nil
	}
	state.Normalize()
	return &state, nil
}

// Save writes the session's conversation state back, refreshing its TTL.
func (r *Repository) Save(ctx context.Context, sid string, state *conversation.State) error {
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := r.store.Put(ctx, sid, raw); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete drops the session entirely.
func (r *Repository) Delete(ctx context.Context, sid string) error {
	return r.store.Delete(ctx, sid)
}
