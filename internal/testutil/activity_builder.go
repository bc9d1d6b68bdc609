package testutil

import (
	"time"

	"github.com/hupe1980/dialogmesh/core"
)

// ActivityBuilder provides a fluent helper for constructing inbound activities.
// Example:
//
//	a := NewActivityBuilder().Text("hello").Conversation("42").From("u1").Build()
//
// Defaults address a message on channel "test", conversation "c1", from
// user "u1" to "bot".
type ActivityBuilder struct {
	a core.Activity
}

// NewActivityBuilder creates a builder for a message activity.
func NewActivityBuilder() *ActivityBuilder {
	return &ActivityBuilder{a: core.Activity{
		Type:         core.ActivityTypeMessage,
		ChannelID:    "test",
		Conversation: core.ConversationAddress{"id": "c1"},
		From:         core.ChannelAccount{ID: "u1", Role: "user"},
		Recipient:    core.ChannelAccount{ID: "bot", Role: "bot"},
	}}
}

// Message is shorthand for NewActivityBuilder().Text(text).Build().
func Message(text string) core.Activity {
	return NewActivityBuilder().Text(text).Build()
}

// ID overrides the generated activity id (chainable).
func (b *ActivityBuilder) ID(id string) *ActivityBuilder { b.a.ID = id; return b }

// Type sets the activity type (chainable).
func (b *ActivityBuilder) Type(t string) *ActivityBuilder { b.a.Type = t; return b }

// Text sets the message text (chainable).
func (b *ActivityBuilder) Text(t string) *ActivityBuilder { b.a.Text = t; return b }

// Channel sets the channel id (chainable).
func (b *ActivityBuilder) Channel(id string) *ActivityBuilder { b.a.ChannelID = id; return b }

// Conversation sets the conversation id (chainable).
func (b *ActivityBuilder) Conversation(id string) *ActivityBuilder {
	b.a.Conversation = b.a.Conversation.Clone()
	if b.a.Conversation == nil {
		b.a.Conversation = core.ConversationAddress{}
	}
	b.a.Conversation["id"] = id
	return b
}

// ConversationField adds a channel specific address field (chainable).
func (b *ActivityBuilder) ConversationField(key string, v any) *ActivityBuilder {
	b.a.Conversation = b.a.Conversation.Clone()
	if b.a.Conversation == nil {
		b.a.Conversation = core.ConversationAddress{}
	}
	b.a.Conversation[key] = v
	return b
}

// From sets the sender id (chainable).
func (b *ActivityBuilder) From(id string) *ActivityBuilder { b.a.From.ID = id; return b }

// Event turns the activity into a named event carrying value (chainable).
func (b *ActivityBuilder) Event(name string, value any) *ActivityBuilder {
	b.a.Type = core.ActivityTypeEvent
	b.a.Name = name
	b.a.Value = value
	return b
}

// Build returns the activity, assigning an id and timestamp when unset.
func (b *ActivityBuilder) Build() core.Activity {
	a := b.a
	a.Conversation = a.Conversation.Clone()
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return a
}
