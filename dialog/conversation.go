package dialog

import (
	"time"

	"github.com/hupe1980/dialogmesh/core"
)

// Conversation context lives at conversation.context and tracks the turn
// count, the conversation start and recently recognized entities.
const (
	conversationContextKey = "context"

	entityExpiryTurns = 5
	entityExpiry      = 120 * time.Second
)

func conversationContext(conv *core.Map) *core.Map {
	v, _ := conv.Get(conversationContextKey)
	if m, ok := v.AsMap(); ok {
		return m
	}
	m := core.NewMap()
	conv.Set(conversationContextKey, core.MapValue(m))
	return m
}

// beginConversationTurn increments turnCount and drops expired entities.
func beginConversationTurn(conv *core.Map, now time.Time) {
	cc := conversationContext(conv)
	if !cc.Has("started") {
		cc.Set("started", core.StringValue(now.UTC().Format(time.RFC3339)))
	}
	count := number(cc, "turnCount") + 1
	cc.Set("turnCount", core.NumberValue(count))

	ev, _ := cc.Get("entities")
	entities, ok := ev.AsMap()
	if !ok {
		return
	}
	for _, name := range entities.Keys() {
		v, _ := entities.Get(name)
		e, ok := v.AsMap()
		if !ok {
			entities.Delete(name)
			continue
		}
		expired := number(e, "expiresAtTurn") < count
		if at, ok := e.Get("expiresAt"); ok {
			s, _ := at.AsString()
			if t, err := time.Parse(time.RFC3339, s); err == nil && t.Before(now) {
				expired = true
			}
		}
		if expired {
			entities.Delete(name)
		}
	}
}

// rememberEntities records every recognized entity type, replacing older
// values of the same type.
func rememberEntities(conv *core.Map, recognized *core.Map, now time.Time) {
	if recognized.Len() == 0 {
		return
	}
	cc := conversationContext(conv)
	ev, _ := cc.Get("entities")
	entities, ok := ev.AsMap()
	if !ok {
		entities = core.NewMap()
		cc.Set("entities", core.MapValue(entities))
	}
	turn := number(cc, "turnCount")

	recognized.Range(func(name string, v core.Value) bool {
		if name == core.InstanceKey {
			return true
		}
		e := core.NewMap()
		e.Set("value", v.Clone())
		e.Set("expiresAtTurn", core.NumberValue(turn+entityExpiryTurns))
		e.Set("expiresAt", core.StringValue(now.Add(entityExpiry).UTC().Format(time.RFC3339)))
		entities.Set(name, core.MapValue(e))
		return true
	})
}

func number(m *core.Map, key string) float64 {
	v, _ := m.Get(key)
	n, _ := v.AsNumber()
	return n
}
