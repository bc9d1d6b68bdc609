package state

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// Load reads both documents named by keys. Missing documents yield empty
// maps and empty ETags.
func Load(ctx context.Context, store core.Storage, keys core.PersistedStateKeys) (*core.PersistedState, error) {
	items, err := store.Read(ctx, []string{keys.UserState, keys.ConversationState})
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	snap := core.NewPersistedState()
	if item, ok := items[keys.UserState]; ok && item.Value != nil {
		snap.UserState = item.Value
		snap.UserETag = item.ETag
	}
	if item, ok := items[keys.ConversationState]; ok && item.Value != nil {
		snap.ConversationState = item.Value
		snap.ConversationETag = item.ETag
	}
	return snap, nil
}

// Save writes both documents in one batch using the ETags the snapshot was
// loaded with. A document loaded without an ETag is written with "*" so a
// concurrent first turn cannot be silently overwritten.
func Save(ctx context.Context, store core.Storage, keys core.PersistedStateKeys, snap *core.PersistedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	changes := map[string]core.StoreItem{
		keys.UserState:         {Value: snap.UserState, ETag: etagOrNew(snap.UserETag)},
		keys.ConversationState: {Value: snap.ConversationState, ETag: etagOrNew(snap.ConversationETag)},
	}
	if err := store.Write(ctx, changes); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func etagOrNew(etag string) string {
	if etag == "" {
		return "*"
	}
	return etag
}
