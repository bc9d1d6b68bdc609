package recognizer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// Score is one ranked label returned by a scoring backend.
type Score struct {
	Label       string  `json:"label"`
	Score       float64 `json:"score"`
	ClosestText string  `json:"closestText"`
}

// Scorer is the black-box intent scoring backend. Implementations must
// return scores in descending order.
type Scorer interface {
	Score(ctx context.Context, utterance string) ([]Score, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, utterance string) ([]Score, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, utterance string) ([]Score, error) {
	return f(ctx, utterance)
}

// Default thresholds.
const (
	DefaultUnknownIntentFilterScore     = 0.40
	DefaultDisambiguationScoreThreshold = 0.05
)

// Options configures an Orchestrator.
type Options struct {
	// ID names the recognizer in logs.
	ID string
	// UnknownIntentFilterScore is the floor below which the result is None.
	UnknownIntentFilterScore float64
	// DisambiguationScoreThreshold is the distance from the top score within
	// which other intents count as ambiguous.
	DisambiguationScoreThreshold float64
	// DetectAmbiguousIntents enables ChooseIntent results.
	DetectAmbiguousIntents bool
	// EntityRecognizers run over the same utterance; none configured means no
	// entity extraction at all.
	EntityRecognizers []EntityRecognizer
	// Logger receives recognition diagnostics.
	Logger logging.Logger
}

// Orchestrator turns scorer output into a RecognizerResult, applying the
// unknown-intent floor and disambiguation. It is safe for concurrent use.
type Orchestrator struct {
	scorer   Scorer
	entities *EntityRecognizerSet
	opts     Options
	logger   logging.Logger
}

// NewOrchestrator creates a disambiguating recognizer over scorer.
func NewOrchestrator(scorer Scorer, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		ID:                           "orchestrator",
		UnknownIntentFilterScore:     DefaultUnknownIntentFilterScore,
		DisambiguationScoreThreshold: DefaultDisambiguationScoreThreshold,
		Logger:                       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		scorer:   scorer,
		entities: NewEntityRecognizerSet(opts.EntityRecognizers...),
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// WithDisambiguation enables ambiguous intent detection with threshold.
func WithDisambiguation(threshold float64) func(o *Options) {
	return func(o *Options) {
		o.DetectAmbiguousIntents = true
		o.DisambiguationScoreThreshold = threshold
	}
}

// WithUnknownIntentFilterScore overrides the None floor.
func WithUnknownIntentFilterScore(score float64) func(o *Options) {
	return func(o *Options) { o.UnknownIntentFilterScore = score }
}

// WithEntityRecognizers appends entity recognizers.
func WithEntityRecognizers(recognizers ...EntityRecognizer) func(o *Options) {
	return func(o *Options) { o.EntityRecognizers = append(o.EntityRecognizers, recognizers...) }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Recognize implements core.Recognizer over the activity text.
func (o *Orchestrator) Recognize(ctx context.Context, activity core.Activity, candidateIntents []string) (*core.RecognizerResult, error) {
	return o.RecognizeText(ctx, activity.Text, candidateIntents)
}

// RecognizeText scores utterance and builds the result.
func (o *Orchestrator) RecognizeText(ctx context.Context, utterance string, candidateIntents []string) (*core.RecognizerResult, error) {
	result := core.NewRecognizerResult(utterance)
	if strings.TrimSpace(utterance) == "" {
		return result, nil
	}

	start := time.Now()

	scores, err := o.scorer.Score(ctx, utterance)
	if err != nil {
		o.logger.Error("recognizer.score_failed", "recognizer", o.opts.ID, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", core.ErrRecognizerUnavailable, o.opts.ID, err)
	}
	scores = filterCandidates(scores, candidateIntents)

	raw := core.NewList()
	for _, s := range scores {
		m := core.NewMap()
		m.Set("label", core.StringValue(s.Label))
		m.Set("score", core.NumberValue(s.Score))
		m.Set("closestText", core.StringValue(s.ClosestText))
		raw.Append(core.MapValue(m))
	}
	result.Properties.Set("result", core.ListValue(raw))

	if err := o.entities.Apply(ctx, utterance, result.Entities); err != nil {
		return nil, err
	}

	switch {
	case len(scores) == 0 || scores[0].Score < o.opts.UnknownIntentFilterScore:
		result.AddIntent(core.NoneIntent, 1.0)
	case o.opts.DetectAmbiguousIntents:
		ambiguous := ambiguousSet(scores, o.opts.DisambiguationScoreThreshold)
		if len(ambiguous) > 1 {
			result.AddIntent(core.ChooseIntent, 1.0)
			for _, s := range ambiguous {
				result.Candidates = append(result.Candidates, core.IntentCandidate{
					Intent:      s.Label,
					Score:       s.Score,
					ClosestText: s.ClosestText,
					Result:      subResult(utterance, s, result.Entities),
				})
			}
			break
		}
		result.AddIntent(scores[0].Label, scores[0].Score)
	default:
		result.AddIntent(scores[0].Label, scores[0].Score)
	}

	top, score := result.TopIntent()
	o.logger.Debug("recognizer.recognized",
		"recognizer", o.opts.ID,
		"intent", top,
		"score", score,
		"candidates", len(result.Candidates),
		"duration", time.Since(start),
	)

	return result, nil
}

// ambiguousSet returns every score within threshold of the top, keeping
// scorer order. Scores are compared in whole hundredths so 0.91 - 0.05 is
// exactly 0.86.
func ambiguousSet(scores []Score, threshold float64) []Score {
	classifying := hundredths(scores[0].Score) - hundredths(threshold)
	var out []Score
	for _, s := range scores {
		if s.Score*100 >= float64(classifying)-1e-9 {
			out = append(out, s)
		}
	}
	return out
}

func hundredths(f float64) int64 {
	return int64(math.Round(f * 100))
}

func filterCandidates(scores []Score, candidates []string) []Score {
	if len(candidates) == 0 {
		return scores
	}
	allowed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		allowed[c] = struct{}{}
	}
	out := make([]Score, 0, len(scores))
	for _, s := range scores {
		if _, ok := allowed[s.Label]; ok {
			out = append(out, s)
		}
	}
	return out
}

func subResult(utterance string, s Score, entities *core.Map) *core.RecognizerResult {
	r := core.NewRecognizerResult(utterance)
	r.AddIntent(s.Label, s.Score)
	r.Entities = entities.Clone()
	r.Properties.Set("closestText", core.StringValue(s.ClosestText))
	return r
}

var _ core.Recognizer = (*Orchestrator)(nil)
