package core

import "context"

// Reserved intent names produced by the disambiguating recognizer.
const (
	NoneIntent         = "None"
	ChooseIntent       = "ChooseIntent"
	CandidatesProperty = "candidates"
	InstanceKey        = "$instance"
)

// IntentScore is the confidence assigned to one intent.
type IntentScore struct {
	Score float64 `json:"score"`
}

// IntentCandidate is one member of an ambiguous recognition.
type IntentCandidate struct {
	Intent      string            `json:"intent"`
	Score       float64           `json:"score"`
	ClosestText string            `json:"closestText"`
	Result      *RecognizerResult `json:"result"`
}

// RecognizerResult is produced fresh every turn and read by triggers.
// Intents keep the order they were produced in.
type RecognizerResult struct {
	Text        string
	IntentNames []string
	Intents     map[string]IntentScore
	Entities    *Map
	Candidates  []IntentCandidate
	Properties  *Map
}

// NewRecognizerResult creates an empty result for text.
func NewRecognizerResult(text string) *RecognizerResult {
	return &RecognizerResult{
		Text:       text,
		Intents:    map[string]IntentScore{},
		Entities:   NewMap(),
		Properties: NewMap(),
	}
}

// AddIntent appends an intent keeping insertion order.
func (r *RecognizerResult) AddIntent(name string, score float64) {
	if _, ok := r.Intents[name]; !ok {
		r.IntentNames = append(r.IntentNames, name)
	}
	r.Intents[name] = IntentScore{Score: score}
}

// TopIntent returns the highest scoring intent. Ties keep insertion order.
// An empty result returns ("", 0).
func (r *RecognizerResult) TopIntent() (string, float64) {
	if r == nil {
		return "", 0
	}
	top, best := "", -1.0
	for _, name := range r.IntentNames {
		if s := r.Intents[name].Score; s > best {
			top, best = name, s
		}
	}
	if top == "" {
		return "", 0
	}
	return top, best
}

// ToValue renders the result for turn.recognized.
func (r *RecognizerResult) ToValue() Value {
	m := NewMap()
	if r == nil {
		return MapValue(m)
	}
	m.Set("text", StringValue(r.Text))
	top, score := r.TopIntent()
	m.Set("intent", StringValue(top))
	m.Set("score", NumberValue(score))

	intents := NewMap()
	for _, name := range r.IntentNames {
		im := NewMap()
		im.Set("score", NumberValue(r.Intents[name].Score))
		intents.Set(name, MapValue(im))
	}
	m.Set("intents", MapValue(intents))
	m.Set("entities", MapValue(r.Entities.Clone()))

	if len(r.Candidates) > 0 {
		cands := NewList()
		for _, c := range r.Candidates {
			cm := NewMap()
			cm.Set("intent", StringValue(c.Intent))
			cm.Set("score", NumberValue(c.Score))
			cm.Set("closestText", StringValue(c.ClosestText))
			if c.Result != nil {
				cm.Set("result", c.Result.ToValue())
			}
			cands.Append(MapValue(cm))
		}
		m.Set(CandidatesProperty, ListValue(cands))
	}
	if r.Properties.Len() > 0 {
		m.Set("properties", MapValue(r.Properties.Clone()))
	}
	return MapValue(m)
}

// Recognizer maps an utterance to intents and entities. A nil or empty
// candidateIntents slice means every intent the backend knows is eligible.
type Recognizer interface {
	Recognize(ctx context.Context, activity Activity, candidateIntents []string) (*RecognizerResult, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, activity Activity, candidateIntents []string) (*RecognizerResult, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, activity Activity, candidateIntents []string) (*RecognizerResult, error) {
	return f(ctx, activity, candidateIntents)
}
