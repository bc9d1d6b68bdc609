// Package anthropic provides a recognizer.Scorer that asks a Claude model to
// classify an utterance against a fixed set of intents and return a JSON
// ranking.
package anthropic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/dialogmesh/recognizer"
)

// MessagesAPI is the subset of the Anthropic client used by the scorer.
// *anthropic.MessageService satisfies it.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Intent describes one label the model may choose.
type Intent struct {
	Label       string
	Description string
	Examples    []string
}

// Options configure the classifier.
type Options struct {
	APIKey      string
	Model       anthropic.Model
	MaxTokens   int64
	Temperature float64
}

// ClassifierScorer scores utterances with an LLM.
type ClassifierScorer struct {
	api     MessagesAPI
	intents []Intent
	opts    Options
}

// NewClassifierScorer creates a scorer using a new Anthropic client.
func NewClassifierScorer(intents []Intent, optFns ...func(o *Options)) *ClassifierScorer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &ClassifierScorer{api: &client.Messages, intents: intents, opts: opts}
}

// NewClassifierScorerFromClient creates a scorer from an existing messages service.
func NewClassifierScorerFromClient(api MessagesAPI, intents []Intent, optFns ...func(o *Options)) *ClassifierScorer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ClassifierScorer{api: api, intents: intents, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:   512,
		Temperature: 0,
	}
}

// Score implements recognizer.Scorer.
func (s *ClassifierScorer) Score(ctx context.Context, utterance string) ([]recognizer.Score, error) {
	params := anthropic.MessageNewParams{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: anthropic.Float(s.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: s.systemPrompt()}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(utterance)),
		},
	}

	resp, err := s.api.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return s.parseScores(text.String())
}

func (s *ClassifierScorer) systemPrompt() string {
	var b strings.Builder
	b.WriteString("Classify the user's message into the intents below. ")
	b.WriteString(`Reply with only a JSON array of objects {"label": string, "score": number between 0 and 1}, `)
	b.WriteString("one per intent, highest score first.\n\nIntents:\n")
	for _, in := range s.intents {
		fmt.Fprintf(&b, "- %s", in.Label)
		if in.Description != "" {
			fmt.Fprintf(&b, ": %s", in.Description)
		}
		b.WriteByte('\n')
		for _, ex := range in.Examples {
			fmt.Fprintf(&b, "  example: %q\n", ex)
		}
	}
	return b.String()
}

// parseScores extracts the JSON array from the reply. Unknown labels are
// dropped and scores are clamped to [0, 1].
func (s *ClassifierScorer) parseScores(reply string) ([]recognizer.Score, error) {
	start, end := strings.IndexByte(reply, '['), strings.LastIndexByte(reply, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("anthropic classifier: no JSON array in reply")
	}
	raw := reply[start : end+1]
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("anthropic classifier: invalid JSON in reply")
	}

	known := make(map[string]Intent, len(s.intents))
	for _, in := range s.intents {
		known[in.Label] = in
	}

	seen := map[string]bool{}
	var out []recognizer.Score
	gjson.Parse(raw).ForEach(func(_, item gjson.Result) bool {
		label := item.Get("label").String()
		in, ok := known[label]
		if !ok || seen[label] {
			return true
		}
		seen[label] = true
		score := item.Get("score").Float()
		score = min(1, max(0, score))
		closest := ""
		if len(in.Examples) > 0 {
			closest = in.Examples[0]
		}
		out = append(out, recognizer.Score{Label: label, Score: score, ClosestText: closest})
		return true
	})

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

var _ recognizer.Scorer = (*ClassifierScorer)(nil)
