package recognizer

import (
	"context"
	"fmt"
	"regexp"
)

// IntentPattern maps a regular expression to an intent label.
type IntentPattern struct {
	Intent  string
	Pattern string
}

type compiledPattern struct {
	intent string
	re     *regexp.Regexp
}

// RegexScorer is a Scorer that gives every intent whose pattern matches a
// score of 1.0, in declaration order. It needs no model and suits
// command-style bots and tests.
type RegexScorer struct {
	patterns []compiledPattern
}

// NewRegexScorer compiles patterns. An intent may appear more than once; its
// first matching pattern wins.
func NewRegexScorer(patterns ...IntentPattern) (*RegexScorer, error) {
	s := &RegexScorer{}
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("intent %q: %w", p.Intent, err)
		}
		s.patterns = append(s.patterns, compiledPattern{intent: p.Intent, re: re})
	}
	return s, nil
}

// MustRegexScorer is NewRegexScorer that panics on an invalid pattern.
func MustRegexScorer(patterns ...IntentPattern) *RegexScorer {
	s, err := NewRegexScorer(patterns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Score implements Scorer.
func (s *RegexScorer) Score(_ context.Context, utterance string) ([]Score, error) {
	var out []Score
	seen := map[string]bool{}
	for _, p := range s.patterns {
		if seen[p.intent] {
			continue
		}
		if m := p.re.FindString(utterance); m != "" {
			seen[p.intent] = true
			out = append(out, Score{Label: p.intent, Score: 1.0, ClosestText: m})
		}
	}
	return out, nil
}

var _ Scorer = (*RegexScorer)(nil)
