// Package openai provides a recognizer.Scorer backed by the OpenAI embeddings
// API. Labelled example utterances are embedded once; each utterance is then
// ranked by cosine similarity against the closest example of every label.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/dialogmesh/recognizer"
)

// EmbeddingsAPI is the subset of the OpenAI client used by the scorer.
// *openai.EmbeddingService satisfies it.
type EmbeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// Example is one labelled training utterance.
type Example struct {
	Label string
	Text  string
}

// Options configure the embedding scorer.
type Options struct {
	Model openai.EmbeddingModel
}

// EmbeddingScorer ranks labels by embedding similarity.
type EmbeddingScorer struct {
	api      EmbeddingsAPI
	examples []Example
	opts     Options

	mu      sync.Mutex
	vectors [][]float64
}

// NewEmbeddingScorer creates a scorer using the default OpenAI client
// configuration (OPENAI_API_KEY from the environment).
func NewEmbeddingScorer(examples []Example, optFns ...func(o *Options)) *EmbeddingScorer {
	client := openai.NewClient()
	return NewEmbeddingScorerFromClient(&client.Embeddings, examples, optFns...)
}

// NewEmbeddingScorerFromClient creates a scorer from an existing embeddings service.
func NewEmbeddingScorerFromClient(api EmbeddingsAPI, examples []Example, optFns ...func(o *Options)) *EmbeddingScorer {
	opts := Options{
		Model: openai.EmbeddingModelTextEmbedding3Small,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &EmbeddingScorer{api: api, examples: examples, opts: opts}
}

// Prepare embeds the examples. It is called lazily by Score; failures are
// not cached so a later call retries.
func (s *EmbeddingScorer) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vectors != nil {
		return nil
	}
	if len(s.examples) == 0 {
		return errors.New("openai scorer: no examples configured")
	}

	texts := make([]string, len(s.examples))
	for i, e := range s.examples {
		texts[i] = e.Text
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}
	s.vectors = vectors
	return nil
}

// Score implements recognizer.Scorer.
func (s *EmbeddingScorer) Score(ctx context.Context, utterance string) ([]recognizer.Score, error) {
	if err := s.Prepare(ctx); err != nil {
		return nil, err
	}

	vecs, err := s.embed(ctx, []string{utterance})
	if err != nil {
		return nil, err
	}
	query := vecs[0]

	best := map[string]recognizer.Score{}
	var order []string
	for i, e := range s.examples {
		sim := math.Max(0, cosine(query, s.vectors[i]))
		cur, seen := best[e.Label]
		if !seen {
			order = append(order, e.Label)
		}
		if !seen || sim > cur.Score {
			best[e.Label] = recognizer.Score{Label: e.Label, Score: sim, ClosestText: e.Text}
		}
	}

	out := make([]recognizer.Score, 0, len(order))
	for _, label := range order {
		out = append(out, best[label])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *EmbeddingScorer) embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := s.api.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: s.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ recognizer.Scorer = (*EmbeddingScorer)(nil)
