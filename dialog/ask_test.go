package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
)

func TestAsk_AcrossTurns(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("What is your name?", "user.name"), SendActivity("thanks")),
	})
	h := newHarness(t, "root", d)

	dc, res := h.turn("hi")
	assert.Equal(t, []string{"What is your name?"}, texts(dc))
	assert.Equal(t, core.TurnStatusWaiting, res.Status)
	assert.Equal(t, StatusWaiting, dc.ActiveDialog().Status)

	dc, res = h.turn("   ")
	assert.Equal(t, []string{"What is your name?"}, texts(dc))
	assert.Equal(t, core.TurnStatusWaiting, res.Status)
	assert.Equal(t, 1.0, must(dc.Memory().GetNumber("this.turnCount")))

	dc, res = h.turn(" Ada ")
	assert.Equal(t, []string{"thanks"}, texts(dc))
	assert.Equal(t, core.TurnStatusComplete, res.Status)
	assert.Equal(t, "Ada", dc.Memory().GetString("user.name"))
}

func TestAsk_SkipsWhenAnswered(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("What is your name?", "user.name"), SendActivity("welcome back")),
	})
	h := newHarness(t, "root", d)
	h.state = testutil.NewSnapshotBuilder().User("name", "Ada").Build()

	dc, res := h.turn("hi")
	assert.Equal(t, []string{"welcome back"}, texts(dc))
	assert.Equal(t, core.TurnStatusComplete, res.Status)
}

func TestAsk_InterruptionThenReprompt(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(
			&Ask{Prompt: "Which city?", Property: "dialog.city", AllowInterruptions: true},
			CopyProperty("dialog.result", "dialog.city"),
		),
		OnIntent("Help", SendActivity("I can book trips.")),
	})
	h := newHarness(t, "root", d)
	h.recognizer = testutil.NewKeywordRecognizer().Intent("help", "Help")

	dc, _ := h.turn("start")
	require.Equal(t, []string{"Which city?"}, texts(dc))

	dc, res := h.turn("help me")
	assert.Equal(t, []string{"I can book trips.", "Which city?"}, texts(dc))
	assert.Equal(t, core.TurnStatusWaiting, res.Status)

	dc, res = h.turn("Paris")
	assert.Empty(t, texts(dc))
	assert.Equal(t, core.TurnStatusComplete, res.Status)
	assert.Equal(t, "Paris", res.Result.String())
}

func TestAsk_NoInterruptionsTakesIntentAsInput(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("Which city?", "dialog.city"), CopyProperty("dialog.result", "dialog.city")),
		OnIntent("Help", SendActivity("I can book trips.")),
	})
	h := newHarness(t, "root", d)
	h.recognizer = testutil.NewKeywordRecognizer().Intent("help", "Help")

	h.turn("start")
	dc, res := h.turn("help")
	assert.Empty(t, texts(dc))
	assert.Equal(t, "help", res.Result.String())
}

func TestAsk_ValidationAndDefault(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(
			&Ask{
				Prompt:        "Continue?",
				Property:      "dialog.answer",
				InvalidPrompt: "Please say yes.",
				Validation:    Equals("turn.value", "yes"),
				MaxTurnCount:  2,
				DefaultValue:  core.StringValue("assumed"),
			},
			CopyProperty("dialog.result", "dialog.answer"),
		),
	})

	t.Run("valid answer", func(t *testing.T) {
		h := newHarness(t, "root", d)
		h.turn("start")
		dc, res := h.turn("no")
		assert.Equal(t, []string{"Please say yes."}, texts(dc))
		assert.Equal(t, core.TurnStatusWaiting, res.Status)

		_, res = h.turn("yes")
		assert.Equal(t, "yes", res.Result.String())
	})

	t.Run("default after max turns", func(t *testing.T) {
		h := newHarness(t, "root", d)
		h.turn("start")
		h.turn("no")
		dc, res := h.turn("nope")
		assert.Empty(t, texts(dc))
		assert.Equal(t, core.TurnStatusComplete, res.Status)
		assert.Equal(t, "assumed", res.Result.String())
	})
}

func TestAsk_Entity(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(
			&Ask{Prompt: "Where to?", Property: "dialog.city", Entity: "city"},
			CopyProperty("dialog.result", "dialog.city"),
		),
	})
	h := newHarness(t, "root", d)
	h.recognizer = testutil.NewKeywordRecognizer().Entity("rome", "city", "Rome")

	h.turn("start")
	dc, res := h.turn("somewhere warm")
	assert.Equal(t, []string{"Where to?"}, texts(dc))
	assert.Equal(t, core.TurnStatusWaiting, res.Status)

	_, res = h.turn("I think rome")
	assert.Equal(t, "Rome", res.Result.String())
}
