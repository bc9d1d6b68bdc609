package recognizer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dialogmesh/core"
)

// Entity is one occurrence found in an utterance. Start and End are rune
// offsets into the utterance, End exclusive.
type Entity struct {
	Type       string
	Text       string
	Start      int
	End        int
	Score      float64
	Value      core.Value
	Resolution core.Value
}

// EntityRecognizer extracts typed entities from text.
type EntityRecognizer interface {
	RecognizeEntities(ctx context.Context, text string) ([]Entity, error)
}

// EntityRecognizerSet runs recognizers concurrently and merges their output
// in declaration order.
type EntityRecognizerSet struct {
	recognizers []EntityRecognizer
	limit       int
}

// NewEntityRecognizerSet creates a set. An empty set is a no-op.
func NewEntityRecognizerSet(recognizers ...EntityRecognizer) *EntityRecognizerSet {
	return &EntityRecognizerSet{recognizers: recognizers, limit: 8}
}

// Len returns the number of configured recognizers.
func (s *EntityRecognizerSet) Len() int { return len(s.recognizers) }

// Recognize runs every recognizer and returns the concatenated entities.
func (s *EntityRecognizerSet) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if len(s.recognizers) == 0 {
		return nil, nil
	}

	results := make([][]Entity, len(s.recognizers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, r := range s.recognizers {
		g.Go(func() error {
			found, err := r.RecognizeEntities(gctx, text)
			if err != nil {
				return fmt.Errorf("entity recognizer %d: %w", i, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRecognizerUnavailable, err)
	}

	var all []Entity
	for _, found := range results {
		all = append(all, found...)
	}
	return all, nil
}

// Apply recognizes entities in text and merges them into entities, including
// the parallel $instance metadata. Existing lists are appended to.
func (s *EntityRecognizerSet) Apply(ctx context.Context, text string, entities *core.Map) error {
	found, err := s.Recognize(ctx, text)
	if err != nil {
		return err
	}
	for _, e := range found {
		MergeEntity(entities, e)
	}
	return nil
}

// MergeEntity appends e to entities[e.Type] and entities.$instance[e.Type].
func MergeEntity(entities *core.Map, e Entity) {
	value := e.Value
	if value.IsNull() {
		value = core.StringValue(e.Text)
	}
	appendTo(entities, e.Type, value)

	instances := childMap(entities, core.InstanceKey)
	inst := core.NewMap()
	inst.Set("startIndex", core.NumberValue(float64(e.Start)))
	inst.Set("endIndex", core.NumberValue(float64(e.End)))
	inst.Set("score", core.NumberValue(e.Score))
	inst.Set("text", core.StringValue(e.Text))
	inst.Set("type", core.StringValue(e.Type))
	if !e.Resolution.IsNull() {
		inst.Set("resolution", e.Resolution)
	}
	appendTo(instances, e.Type, core.MapValue(inst))
}

func childMap(m *core.Map, key string) *core.Map {
	if v, ok := m.Get(key); ok {
		if cm, ok := v.AsMap(); ok {
			return cm
		}
	}
	cm := core.NewMap()
	m.Set(key, core.MapValue(cm))
	return cm
}

func appendTo(m *core.Map, key string, v core.Value) {
	if existing, ok := m.Get(key); ok {
		if l, ok := existing.AsList(); ok {
			l.Append(v)
			return
		}
	}
	m.Set(key, core.ListValue(core.NewList(v)))
}

func runeSpan(text string, start, end int) (int, int) {
	return utf8.RuneCountInString(text[:start]), utf8.RuneCountInString(text[:end])
}

// RegexEntityRecognizer reports every match of Pattern as an entity of Type.
type RegexEntityRecognizer struct {
	Type    string
	Pattern *regexp.Regexp
}

// NewRegexEntityRecognizer compiles pattern.
func NewRegexEntityRecognizer(entityType, pattern string) (*RegexEntityRecognizer, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexEntityRecognizer{Type: entityType, Pattern: re}, nil
}

// RecognizeEntities implements EntityRecognizer.
func (r *RegexEntityRecognizer) RecognizeEntities(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
		start, end := runeSpan(text, loc[0], loc[1])
		out = append(out, Entity{
			Type:  r.Type,
			Text:  text[loc[0]:loc[1]],
			Start: start,
			End:   end,
			Score: 1.0,
		})
	}
	return out, nil
}

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// NumberEntityRecognizer extracts integers and decimals as "number" entities.
type NumberEntityRecognizer struct{}

// RecognizeEntities implements EntityRecognizer.
func (NumberEntityRecognizer) RecognizeEntities(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	for _, loc := range numberPattern.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			continue
		}
		start, end := runeSpan(text, loc[0], loc[1])
		res := core.NewMap()
		res.Set("value", core.StringValue(strconv.FormatFloat(f, 'f', -1, 64)))
		out = append(out, Entity{
			Type:       "number",
			Text:       raw,
			Start:      start,
			End:        end,
			Score:      1.0,
			Value:      core.NumberValue(f),
			Resolution: core.MapValue(res),
		})
	}
	return out, nil
}

// ListEntityRecognizer matches whole-word synonyms case-insensitively and
// resolves them to a canonical value.
type ListEntityRecognizer struct {
	Type     string
	patterns []listPattern
}

type listPattern struct {
	canonical string
	re        *regexp.Regexp
}

// NewListEntityRecognizer builds a recognizer from canonical value to synonyms.
// Canonical values always match themselves. Order of values is preserved.
func NewListEntityRecognizer(entityType string, values ...ListEntry) *ListEntityRecognizer {
	r := &ListEntityRecognizer{Type: entityType}
	for _, v := range values {
		words := append([]string{v.Canonical}, v.Synonyms...)
		quoted := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" {
				quoted = append(quoted, regexp.QuoteMeta(w))
			}
		}
		if len(quoted) == 0 {
			continue
		}
		re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
		r.patterns = append(r.patterns, listPattern{canonical: v.Canonical, re: re})
	}
	return r
}

// ListEntry is one canonical list entry.
type ListEntry struct {
	Canonical string
	Synonyms  []string
}

// RecognizeEntities implements EntityRecognizer.
func (r *ListEntityRecognizer) RecognizeEntities(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := runeSpan(text, loc[0], loc[1])
			res := core.NewMap()
			res.Set("values", core.ListValue(core.NewList(core.StringValue(p.canonical))))
			out = append(out, Entity{
				Type:       r.Type,
				Text:       text[loc[0]:loc[1]],
				Start:      start,
				End:        end,
				Score:      1.0,
				Value:      core.StringValue(p.canonical),
				Resolution: core.MapValue(res),
			})
		}
	}
	return out, nil
}

var (
	_ EntityRecognizer = (*RegexEntityRecognizer)(nil)
	_ EntityRecognizer = NumberEntityRecognizer{}
	_ EntityRecognizer = (*ListEntityRecognizer)(nil)
)
