package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/storage"
)

func activity() core.Activity {
	a := core.NewMessageActivity("hi")
	a.ChannelID = "c"
	a.Conversation = core.ConversationAddress{"id": "42"}
	a.From = core.ChannelAccount{ID: "u1"}
	return a
}

func TestBuildKey(t *testing.T) {
	key, err := BuildKey(activity(), ConversationNamespace)
	require.NoError(t, err)
	assert.Equal(t, "c/conversations/42-u1/conversation", key)
}

func TestBuildKey_DeterministicAcrossFieldOrder(t *testing.T) {
	a := activity()
	a.Conversation = core.ConversationAddress{"tenant": "t9", "id": "42", "isGroup": true, "empty": "", "nothing": nil}

	first, err := BuildKey(a, UserNamespace)
	require.NoError(t, err)
	for range 20 {
		b := activity()
		b.Conversation = core.ConversationAddress{"nothing": nil, "isGroup": true, "empty": "", "id": "42", "tenant": "t9"}
		again, err := BuildKey(b, UserNamespace)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// id < isGroup < tenant
	assert.Equal(t, "c/conversations/42-true-t9-u1/user", first)
}

func TestBuildKey_MissingFields(t *testing.T) {
	a := activity()
	a.ChannelID = ""
	_, err := BuildKey(a, ConversationNamespace)
	assert.ErrorIs(t, err, core.ErrMissingAddressField)

	a = activity()
	a.Conversation = core.ConversationAddress{"tenant": "x"}
	_, err = BuildKey(a, ConversationNamespace)
	assert.ErrorIs(t, err, core.ErrMissingAddressField)
}

func TestBuildKey_NumericConversationID(t *testing.T) {
	a := activity()
	a.Conversation = core.ConversationAddress{"id": float64(7)}
	key, err := BuildKey(a, ConversationNamespace)
	require.NoError(t, err)
	assert.Equal(t, "c/conversations/7-u1/conversation", key)

	a.Conversation = core.ConversationAddress{"id": nil}
	_, err = BuildKey(a, ConversationNamespace)
	assert.ErrorIs(t, err, core.ErrMissingAddressField)
}

func TestKeysFor(t *testing.T) {
	keys, err := KeysFor(activity())
	require.NoError(t, err)
	assert.Equal(t, "c/conversations/42-u1/conversation", keys.ConversationState)
	assert.Equal(t, "c/conversations/42-u1/user", keys.UserState)
}

func TestLoadSave_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryStorage()
	keys, err := KeysFor(activity())
	require.NoError(t, err)

	snap, err := Load(ctx, store, keys)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ConversationState.Len())
	assert.Empty(t, snap.ConversationETag)

	snap.ConversationState.Set("count", core.NumberValue(1))
	require.NoError(t, Save(ctx, store, keys, snap))

	loaded, err := Load(ctx, store, keys)
	require.NoError(t, err)
	v, ok := loaded.ConversationState.Get("count")
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 1.0, n)
	assert.NotEmpty(t, loaded.ConversationETag)

	// Saving the stale, never-stored snapshot again must conflict.
	assert.ErrorIs(t, Save(ctx, store, keys, snap), core.ErrETagMismatch)
}
