package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity types understood by the turn engine.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeEvent              = "event"
	ActivityTypeEndOfConversation  = "endOfConversation"
	ActivityTypeTyping             = "typing"
)

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAddress holds the channel specific fields that address a
// conversation. It always carries at least "id"; channels add fields such as
// "tenantId" or "threadId".
type ConversationAddress map[string]any

// ID returns the conversation id rendered as text, or "" when absent.
// Non-string ids such as JSON numbers count as present.
func (c ConversationAddress) ID() string {
	v, ok := c["id"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the address.
func (c ConversationAddress) Clone() ConversationAddress {
	if c == nil {
		return nil
	}
	out := make(ConversationAddress, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Activity is one inbound or outbound conversational message. Inbound
// activities are treated as immutable; replies are built with CreateReply.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         string              `json:"type"`
	ChannelID    string              `json:"channelId"`
	Conversation ConversationAddress `json:"conversation,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Text         string              `json:"text,omitempty"`
	Name         string              `json:"name,omitempty"`
	Value        any                 `json:"value,omitempty"`
	ChannelData  map[string]any      `json:"channelData,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewMessageActivity creates an outbound message with a fresh id.
func NewMessageActivity(text string) Activity {
	return Activity{
		ID:        NewID(),
		Type:      ActivityTypeMessage,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventActivity creates an event activity carrying a named payload.
func NewEventActivity(name string, value any) Activity {
	return Activity{
		ID:        NewID(),
		Type:      ActivityTypeEvent,
		Name:      name,
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
}

// IsMessage reports whether a is a message activity.
func (a Activity) IsMessage() bool { return a.Type == ActivityTypeMessage }

// CreateReply builds an outbound message addressed back to the sender of a.
func (a Activity) CreateReply(text string) Activity {
	reply := NewMessageActivity(text)
	reply.ChannelID = a.ChannelID
	reply.Conversation = a.Conversation.Clone()
	reply.From = a.Recipient
	reply.Recipient = a.From
	reply.ServiceURL = a.ServiceURL
	reply.Locale = a.Locale
	reply.ReplyToID = a.ID
	return reply
}

// ToValue exposes the activity to dialog memory as turn.activity.
func (a Activity) ToValue() Value {
	m := NewMap()
	m.Set("id", StringValue(a.ID))
	m.Set("type", StringValue(a.Type))
	m.Set("channelId", StringValue(a.ChannelID))
	conv := NewMap()
	for _, k := range sortedKeys(a.Conversation) {
		conv.Set(k, FromAny(a.Conversation[k]))
	}
	m.Set("conversation", MapValue(conv))
	m.Set("from", accountValue(a.From))
	m.Set("recipient", accountValue(a.Recipient))
	m.Set("text", StringValue(a.Text))
	if a.Name != "" {
		m.Set("name", StringValue(a.Name))
	}
	if a.Value != nil {
		m.Set("value", FromAny(a.Value))
	}
	if a.ChannelData != nil {
		m.Set("channelData", FromAny(a.ChannelData))
	}
	if a.Locale != "" {
		m.Set("locale", StringValue(a.Locale))
	}
	return MapValue(m)
}

func accountValue(c ChannelAccount) Value {
	m := NewMap()
	m.Set("id", StringValue(c.ID))
	if c.Name != "" {
		m.Set("name", StringValue(c.Name))
	}
	if c.Role != "" {
		m.Set("role", StringValue(c.Role))
	}
	return MapValue(m)
}

// ConversationReference captures the addressing subset of an activity needed
// to resume the conversation later.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	ChannelID    string              `json:"channelId"`
	Conversation ConversationAddress `json:"conversation"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
}

// GetConversationReference derives a reference from an inbound activity.
func GetConversationReference(a Activity) ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		ChannelID:    a.ChannelID,
		Conversation: a.Conversation.Clone(),
		User:         a.From,
		Bot:          a.Recipient,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyToActivity stamps the reference's addressing onto a proactive outbound activity.
func (r ConversationReference) ApplyToActivity(a Activity) Activity {
	a.ChannelID = r.ChannelID
	a.Conversation = r.Conversation.Clone()
	a.From = r.Bot
	a.Recipient = r.User
	a.ServiceURL = r.ServiceURL
	if a.Locale == "" {
		a.Locale = r.Locale
	}
	return a
}

// NewID returns a random unique identifier.
func NewID() string { return uuid.NewString() }
