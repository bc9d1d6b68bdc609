package testutil

import (
	"github.com/hupe1980/dialogmesh/core"
)

// SnapshotBuilder helps construct persisted state with fluent chaining.
// Example:
//
//	snap := NewSnapshotBuilder().User("name", "Ada").Conversation("topic", "trips").Build()
type SnapshotBuilder struct {
	user         map[string]any
	conversation map[string]any
	userETag     string
	convETag     string
}

// NewSnapshotBuilder creates an empty builder.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{user: map[string]any{}, conversation: map[string]any{}}
}

// User sets a top level user state key (chainable).
func (b *SnapshotBuilder) User(key string, v any) *SnapshotBuilder {
	b.user[key] = v
	return b
}

// Conversation sets a top level conversation state key (chainable).
func (b *SnapshotBuilder) Conversation(key string, v any) *SnapshotBuilder {
	b.conversation[key] = v
	return b
}

// ETags sets the ETags the snapshot claims to have been read at (chainable).
func (b *SnapshotBuilder) ETags(user, conversation string) *SnapshotBuilder {
	b.userETag, b.convETag = user, conversation
	return b
}

// Build returns the snapshot. Keys are inserted in sorted order.
func (b *SnapshotBuilder) Build() *core.PersistedState {
	return &core.PersistedState{
		UserState:         core.MapFrom(b.user),
		ConversationState: core.MapFrom(b.conversation),
		UserETag:          b.userETag,
		ConversationETag:  b.convETag,
	}
}
