package core

import "context"

// StoreItem is one persisted document together with the ETag it was read at.
// An empty ETag on write means "last writer wins"; "*" means "must not exist".
type StoreItem struct {
	Value *Map   `json:"value"`
	ETag  string `json:"eTag,omitempty"`
}

// Storage is a flat key to JSON map store. Writes must be atomic per key so a
// concurrent Read never observes a partially written document.
//
// Read returns only the keys that exist. Write fails with ErrETagMismatch when
// an item's ETag no longer matches the stored one; in that case no key of the
// batch is modified by in-process backends and callers may retry the turn.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]StoreItem, error)
	Write(ctx context.Context, changes map[string]StoreItem) error
	Delete(ctx context.Context, keys []string) error
}

// PersistedStateKeys names the two storage documents of one conversation.
type PersistedStateKeys struct {
	UserState         string `json:"userState"`
	ConversationState string `json:"conversationState"`
}

// PersistedState is the durable snapshot a turn operates on.
type PersistedState struct {
	UserState         *Map `json:"userState"`
	ConversationState *Map `json:"conversationState"`

	UserETag         string `json:"-"`
	ConversationETag string `json:"-"`
}

// NewPersistedState returns an empty snapshot.
func NewPersistedState() *PersistedState {
	return &PersistedState{UserState: NewMap(), ConversationState: NewMap()}
}

// Clone deep copies the snapshot including ETags.
func (p *PersistedState) Clone() *PersistedState {
	if p == nil {
		return NewPersistedState()
	}
	return &PersistedState{
		UserState:         p.UserState.Clone(),
		ConversationState: p.ConversationState.Clone(),
		UserETag:          p.UserETag,
		ConversationETag:  p.ConversationETag,
	}
}

// ActivitySink delivers outbound activities produced by a turn.
type ActivitySink interface {
	Send(ctx context.Context, activities []Activity) error
}

// Settings is the read-only configuration surfaced through the settings scope.
type Settings map[string]any
