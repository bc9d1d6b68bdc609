// Package state derives storage keys for conversation and user state and
// moves snapshots between a core.Storage and the engine.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
)

// Namespaces used by KeysFor.
const (
	ConversationNamespace = "conversation"
	UserNamespace         = "user"
)

// BuildKey returns the storage key for the activity's address under
// namespace: {channelId}/conversations/{address}-{fromId}/{namespace}.
//
// The address part joins every non-empty conversation field value in
// ascending field-name order with "-", so the same address always produces
// the same key regardless of map iteration order.
func BuildKey(a core.Activity, namespace string) (string, error) {
	if a.ChannelID == "" {
		return "", fmt.Errorf("%w: channelId", core.ErrMissingAddressField)
	}
	if a.Conversation.ID() == "" {
		return "", fmt.Errorf("%w: conversation.id", core.ErrMissingAddressField)
	}

	names := make([]string, 0, len(a.Conversation))
	for k := range a.Conversation {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	for _, k := range names {
		v := a.Conversation[k]
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	parts = append(parts, a.From.ID)

	return fmt.Sprintf("%s/conversations/%s/%s", a.ChannelID, strings.Join(parts, "-"), namespace), nil
}

// KeysFor returns the conversation and user keys for an activity.
func KeysFor(a core.Activity) (core.PersistedStateKeys, error) {
	conv, err := BuildKey(a, ConversationNamespace)
	if err != nil {
		return core.PersistedStateKeys{}, err
	}
	user, err := BuildKey(a, UserNamespace)
	if err != nil {
		return core.PersistedStateKeys{}, err
	}
	return core.PersistedStateKeys{UserState: user, ConversationState: conv}, nil
}
