package testutil

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/dialogmesh/core"
)

type keyword struct {
	word, intent string
}

type keywordEntity struct {
	word, entityType string
	value            any
}

// KeywordRecognizer maps words in the utterance to intents and entities.
// The first configured word found wins; with no match it reports None at
// 1.0. It counts calls so tests can assert caching.
type KeywordRecognizer struct {
	intents  []keyword
	entities []keywordEntity
	calls    atomic.Int32
}

// NewKeywordRecognizer creates an empty recognizer.
func NewKeywordRecognizer() *KeywordRecognizer { return &KeywordRecognizer{} }

// Intent maps word (case-insensitive) to intent (chainable).
func (k *KeywordRecognizer) Intent(word, intent string) *KeywordRecognizer {
	k.intents = append(k.intents, keyword{word: strings.ToLower(word), intent: intent})
	return k
}

// Entity adds an entity of entityType with value whenever word occurs (chainable).
func (k *KeywordRecognizer) Entity(word, entityType string, value any) *KeywordRecognizer {
	k.entities = append(k.entities, keywordEntity{word: strings.ToLower(word), entityType: entityType, value: value})
	return k
}

// Calls returns how often Recognize ran.
func (k *KeywordRecognizer) Calls() int { return int(k.calls.Load()) }

// Recognize implements core.Recognizer.
func (k *KeywordRecognizer) Recognize(_ context.Context, a core.Activity, _ []string) (*core.RecognizerResult, error) {
	k.calls.Add(1)
	res := core.NewRecognizerResult(a.Text)
	text := strings.ToLower(a.Text)

	for _, kw := range k.intents {
		if strings.Contains(text, kw.word) {
			res.AddIntent(kw.intent, 1.0)
			break
		}
	}
	if len(res.IntentNames) == 0 {
		res.AddIntent(core.NoneIntent, 1.0)
	}

	for _, e := range k.entities {
		if !strings.Contains(text, e.word) {
			continue
		}
		list := core.NewList()
		if cur, ok := res.Entities.Get(e.entityType); ok {
			if l, ok := cur.AsList(); ok {
				list = l
			}
		}
		list.Append(core.FromAny(e.value))
		res.Entities.Set(e.entityType, core.ListValue(list))
	}
	return res, nil
}

// StaticRecognizer always returns a clone of the configured result.
func StaticRecognizer(res *core.RecognizerResult) core.Recognizer {
	return core.RecognizerFunc(func(context.Context, core.Activity, []string) (*core.RecognizerResult, error) {
		out := *res
		out.Entities = res.Entities.Clone()
		out.Properties = res.Properties.Clone()
		return &out, nil
	})
}

// FailingRecognizer always fails with err.
func FailingRecognizer(err error) core.Recognizer {
	return core.RecognizerFunc(func(context.Context, core.Activity, []string) (*core.RecognizerResult, error) {
		return nil, err
	})
}

var _ core.Recognizer = (*KeywordRecognizer)(nil)
