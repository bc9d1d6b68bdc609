package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActivity() Activity {
	return Activity{
		ID:           "act-1",
		Type:         ActivityTypeMessage,
		ChannelID:    "slack",
		Conversation: ConversationAddress{"id": "42", "tenantId": "t1"},
		From:         ChannelAccount{ID: "u1", Name: "Ada"},
		Recipient:    ChannelAccount{ID: "bot"},
		Text:         "hi",
		ServiceURL:   "https://example.invalid",
		Locale:       "en-US",
	}
}

func TestActivity_CreateReply(t *testing.T) {
	in := testActivity()
	reply := in.CreateReply("hello")

	assert.Equal(t, ActivityTypeMessage, reply.Type)
	assert.Equal(t, "hello", reply.Text)
	assert.Equal(t, "slack", reply.ChannelID)
	assert.Equal(t, "bot", reply.From.ID)
	assert.Equal(t, "u1", reply.Recipient.ID)
	assert.Equal(t, "act-1", reply.ReplyToID)
	assert.NotEmpty(t, reply.ID)
	assert.NotEqual(t, in.ID, reply.ID)

	// The reply owns its address copy.
	reply.Conversation["id"] = "changed"
	assert.Equal(t, "42", in.Conversation.ID())
}

func TestConversationAddress_ID(t *testing.T) {
	tests := []struct {
		name string
		addr ConversationAddress
		want string
	}{
		{"string", ConversationAddress{"id": "42"}, "42"},
		{"json number", ConversationAddress{"id": float64(42)}, "42"},
		{"integer", ConversationAddress{"id": 7}, "7"},
		{"nil value", ConversationAddress{"id": nil}, ""},
		{"missing", ConversationAddress{"tenant": "t"}, ""},
		{"nil address", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.addr.ID())
		})
	}
}

func TestConversationReference_RoundTrip(t *testing.T) {
	in := testActivity()
	ref := GetConversationReference(in)

	assert.Equal(t, "act-1", ref.ActivityID)
	assert.Equal(t, "u1", ref.User.ID)
	assert.Equal(t, "bot", ref.Bot.ID)

	proactive := ref.ApplyToActivity(NewMessageActivity("ping"))
	assert.Equal(t, "slack", proactive.ChannelID)
	assert.Equal(t, "42", proactive.Conversation.ID())
	assert.Equal(t, "bot", proactive.From.ID)
	assert.Equal(t, "u1", proactive.Recipient.ID)
	assert.Equal(t, "en-US", proactive.Locale)
}

func TestActivity_ToValue(t *testing.T) {
	v := testActivity().ToValue()
	m, ok := v.AsMap()
	require.True(t, ok)

	text, _ := m.Get("text")
	assert.Equal(t, "hi", text.String())

	conv, _ := m.Get("conversation")
	cm, _ := conv.AsMap()
	assert.Equal(t, []string{"id", "tenantId"}, cm.Keys())
}

func TestRecognizerResult_TopIntentAndValue(t *testing.T) {
	r := NewRecognizerResult("book a flight")
	r.AddIntent("BookFlight", 0.8)
	r.AddIntent("Cancel", 0.8)
	r.AddIntent("Help", 0.1)

	name, score := r.TopIntent()
	assert.Equal(t, "BookFlight", name)
	assert.Equal(t, 0.8, score)

	v := r.ToValue()
	m, _ := v.AsMap()
	intent, _ := m.Get("intent")
	assert.Equal(t, "BookFlight", intent.String())
	intents, _ := m.Get("intents")
	im, _ := intents.AsMap()
	assert.Equal(t, []string{"BookFlight", "Cancel", "Help"}, im.Keys())

	empty := NewRecognizerResult("")
	name, score = empty.TopIntent()
	assert.Empty(t, name)
	assert.Zero(t, score)
}

func TestPersistedState_Clone(t *testing.T) {
	p := NewPersistedState()
	p.UserState.Set("name", StringValue("ada"))
	p.ConversationETag = "3"

	cp := p.Clone()
	cp.UserState.Set("name", StringValue("bob"))

	v, _ := p.UserState.Get("name")
	assert.Equal(t, "ada", v.String())
	assert.Equal(t, "3", cp.ConversationETag)
}
