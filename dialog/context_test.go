package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
)

func TestBeginDialog_UnknownIDLeavesStackUnchanged(t *testing.T) {
	h := newHarness(t, "root", NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("name?", "dialog.name")),
	}))
	dc, _ := h.turn("hi")
	require.Equal(t, 1, dc.Depth())

	dc = h.context(testutil.Message("again"))
	_, err := dc.BeginDialog(context.Background(), "missing", core.Null())
	assert.ErrorIs(t, err, core.ErrDialogNotFound)
	assert.Equal(t, 1, dc.Depth())
	assert.Equal(t, "root", dc.ActiveDialog().ID)
	assert.Equal(t, StackInterrupted, dc.Status())
}

func TestEndDialog_DeliversResultToParent(t *testing.T) {
	child := NewTriggerDialog("child", []*Trigger{
		OnBeginDialog(SendActivity("in child"), EndDialog("done")),
	})
	root := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(
			BeginDialog("child").WithResultProperty("dialog.childResult"),
			CopyProperty("dialog.result", "dialog.childResult"),
			SendActivity("back"),
		),
	})

	h := newHarness(t, "root", root, child)
	dc, res := h.turn("hi")

	assert.Equal(t, core.TurnStatusComplete, res.Status)
	assert.Equal(t, "done", res.Result.String())
	assert.True(t, res.ParentEnded)
	assert.Equal(t, []string{"in child", "back"}, texts(dc))
	assert.Equal(t, 0, dc.Depth())
	assert.Equal(t, StackCompleted, dc.Status())
	assert.Equal(t, "done", dc.Memory().GetString("turn.lastResult"))
}

func TestContinueDialog_EmptyStack(t *testing.T) {
	dc, err := NewContext(NewSet(), testutil.Message("hi"), nil)
	require.NoError(t, err)

	res, err := dc.ContinueDialog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.TurnStatusEmpty, res.Status)
}

func TestBaseDialog_ContinueEnds(t *testing.T) {
	h := newHarness(t, "plain", newFuncDialog("plain", waiting))

	_, res := h.turn("one")
	assert.Equal(t, core.TurnStatusWaiting, res.Status)

	dc, res := h.turn("two")
	assert.Equal(t, core.TurnStatusComplete, res.Status)
	assert.Equal(t, 0, dc.Depth())
}

func TestReplaceDialog(t *testing.T) {
	second := NewTriggerDialog("second", []*Trigger{
		OnBeginDialog(CopyProperty("dialog.result", "dialog.options.n")),
	})

	t.Run("replaces the running dialog", func(t *testing.T) {
		root := NewTriggerDialog("root", []*Trigger{
			OnBeginDialog(ReplaceDialog("second", map[string]any{"n": 1})),
		})
		h := newHarness(t, "root", root, second)

		dc, res := h.turn("hi")
		assert.Equal(t, core.TurnStatusComplete, res.Status)
		assert.True(t, res.Result.Equal(core.NumberValue(1)))
		assert.Equal(t, 0, dc.Depth())
	})

	t.Run("unknown id keeps the stack", func(t *testing.T) {
		root := NewTriggerDialog("root", []*Trigger{
			OnBeginDialog(ReplaceDialog("nope", nil)),
		})
		h := newHarness(t, "root", root, second)

		dc, _, err := h.try("hi")
		assert.ErrorIs(t, err, core.ErrDialogNotFound)
		assert.ErrorIs(t, err, core.ErrFrameEvaluation)
		assert.Equal(t, 1, dc.Depth())
		assert.Equal(t, "root", dc.ActiveDialog().ID)
	})
}

func TestCancelAllDialogs(t *testing.T) {
	root := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(BeginDialog("child"), SendActivity("never")),
	})
	child := NewTriggerDialog("child", []*Trigger{
		OnBeginDialog(CancelAllDialogs()),
	})
	h := newHarness(t, "root", root, child)

	dc, res := h.turn("hi")
	assert.Equal(t, core.TurnStatusCancelled, res.Status)
	assert.Equal(t, StackCompleted, dc.Status())
	assert.Equal(t, 0, dc.Depth())
	assert.Empty(t, texts(dc))
}

func TestStackOverflow(t *testing.T) {
	recursive := NewTriggerDialog("loop", []*Trigger{
		OnBeginDialog(BeginDialog("loop")),
	})
	h := newHarness(t, "loop", recursive)
	h.maxDepth = 5

	dc, _, err := h.try("hi")
	assert.ErrorIs(t, err, core.ErrStackOverflow)
	assert.ErrorIs(t, err, core.ErrFrameEvaluation)
	assert.Equal(t, 5, dc.Depth())
	assert.Equal(t, StackInterrupted, dc.Status())
}

func TestActionLimit(t *testing.T) {
	root := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(SendActivity("tick"), RepeatDialog()),
	})
	h := newHarness(t, "root", root)
	h.maxActions = 10

	dc, _, err := h.try("hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrActionLimit)
	assert.ErrorIs(t, err, core.ErrFrameEvaluation)

	var fe *core.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "root", fe.DialogID)
	assert.Equal(t, "SendActivity", fe.Action)
	assert.Len(t, texts(dc), 5)
}

func TestMemoryScopes(t *testing.T) {
	t.Run("frame scopes need a frame", func(t *testing.T) {
		dc, err := NewContext(NewSet(), testutil.Message("hi"), nil)
		require.NoError(t, err)

		assert.ErrorIs(t, dc.Memory().SetValue("dialog.x", core.NumberValue(1)), core.ErrScopeUnavailable)
		assert.ErrorIs(t, dc.Memory().SetValue("this.x", core.NumberValue(1)), core.ErrScopeUnavailable)
		assert.False(t, dc.Memory().HasPath("dialog.x"))
		assert.ErrorIs(t, dc.Memory().SetValue("dialogContext.x", core.NumberValue(1)), core.ErrReadOnlyScope)
	})

	t.Run("settings are read-only", func(t *testing.T) {
		dc, err := NewContext(NewSet(), testutil.Message("hi"), nil, func(o *Options) {
			o.Settings = core.Settings{"botName": "mesh"}
		})
		require.NoError(t, err)

		assert.Equal(t, "mesh", dc.Memory().GetString("settings.botName"))
		assert.ErrorIs(t, dc.Memory().SetValue("settings.botName", core.StringValue("x")), core.ErrReadOnlyScope)
	})

	t.Run("class and dialog context", func(t *testing.T) {
		var (
			classGreeting  string
			classID        string
			childClass     bool
			dialogClass    string
			stack          string
			parent, active string
		)

		child := newFuncDialog("child", func(_ context.Context, dc *Context) (core.TurnResult, error) {
			mem := dc.Memory()
			childClass = mem.HasPath("class.greeting")
			dialogClass = mem.GetString("dialogClass.greeting")
			stack = mem.GetString("dialogContext.stack")
			parent = mem.GetString("dialogContext.parent")
			active = mem.GetString("dialogContext.activeDialog")
			return core.TurnResult{Status: core.TurnStatusWaiting}, nil
		})
		root := NewTriggerDialog("root", []*Trigger{
			OnBeginDialog(
				Do("inspect", func(_ context.Context, dc *Context) error {
					classGreeting = dc.Memory().GetString("%greeting")
					classID = dc.Memory().GetString("class.id")
					return nil
				}),
				BeginDialog("child"),
			),
		}, func(o *TriggerDialogOptions) {
			o.Properties = map[string]any{"greeting": "hello"}
		})

		h := newHarness(t, "root", root, child)
		dc, _ := h.turn("hi")

		assert.Equal(t, "hello", classGreeting)
		assert.Equal(t, "root", classID)
		assert.False(t, childClass)
		assert.Equal(t, "hello", dialogClass)
		assert.Equal(t, `["child","root"]`, stack)
		assert.Equal(t, "root", parent)
		assert.Equal(t, "child", active)
		assert.ErrorIs(t, dc.Memory().SetValue("class.greeting", core.StringValue("x")), core.ErrReadOnlyScope)
	})
}

func TestPersist_StackRoundTrip(t *testing.T) {
	root := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("name?", "user.name")),
	})
	h := newHarness(t, "root", root)
	h.turn("hi")

	raw, ok := h.state.ConversationState.Get(StackKey)
	require.True(t, ok)

	// Survive a trip through JSON like a real store would.
	data, err := h.state.ConversationState.MarshalJSON()
	require.NoError(t, err)
	conv := core.NewMap()
	require.NoError(t, conv.UnmarshalJSON(data))
	h.state.ConversationState = conv

	stack, err := DecodeStack(raw)
	require.NoError(t, err)
	require.Len(t, stack, 1)
	assert.Equal(t, "root", stack[0].ID)
	assert.Equal(t, StatusWaiting, stack[0].Status)
	require.Len(t, stack[0].Plans, 1)
	assert.Equal(t, Plan{Trigger: "beginDialog:0", Step: 0, Waiting: true}, stack[0].Plans[0])

	dc, res := h.turn("Ada")
	assert.Equal(t, core.TurnStatusComplete, res.Status)
	assert.False(t, dc.Memory().HasPath("conversation."+StackKey))
	assert.Equal(t, "Ada", dc.Memory().GetString("user.name"))
}

func TestDecodeStack_Errors(t *testing.T) {
	stack, err := DecodeStack(core.Null())
	require.NoError(t, err)
	assert.Nil(t, stack)

	_, err = DecodeStack(core.StringValue("nope"))
	assert.Error(t, err)

	_, err = DecodeStack(core.FromAny([]any{map[string]any{"state": map[string]any{}}}))
	assert.ErrorContains(t, err, "frame 0")

	for _, step := range []any{-1, 1.5, "two"} {
		frame := map[string]any{
			"id":    "root",
			"plans": []any{map[string]any{"trigger": "t0", "step": step, "waiting": true}},
		}
		_, err = DecodeStack(core.FromAny([]any{frame}))
		assert.ErrorContains(t, err, "invalid step", "step %v", step)
	}
}

func TestNewContext_RejectsNegativeStep(t *testing.T) {
	d := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(AskFor("name?", "dialog.name")),
	})
	h := newHarness(t, "root", d)
	h.turn("hi")

	stack, ok := h.state.ConversationState.Get(StackKey)
	require.True(t, ok)
	frames, _ := stack.AsList()
	frame, _ := frames.Items()[0].AsMap()
	plans, _ := frame.Get("plans")
	items, _ := plans.AsList()
	plan, _ := items.Items()[0].AsMap()
	plan.Set("step", core.NumberValue(-1))

	_, err := NewContext(h.dialogs, testutil.Message("Ada"), h.state)
	assert.ErrorContains(t, err, "invalid step")
}

func TestNewContext_RejectsCorruptStack(t *testing.T) {
	snap := testutil.NewSnapshotBuilder().Conversation(StackKey, "garbage").Build()
	_, err := NewContext(NewSet(), testutil.Message("hi"), snap)
	assert.Error(t, err)
}

func TestConversationContext(t *testing.T) {
	root := NewTriggerDialog("root", nil, noAutoEnd)
	h := newHarness(t, "root", root)
	h.recognizer = testutil.NewKeywordRecognizer().Entity("paris", "city", "Paris")

	dc, _ := h.turn("to paris")
	assert.Equal(t, 1.0, must(dc.Memory().GetNumber("conversation.context.turnCount")))
	assert.Equal(t, "2024-05-01T12:00:00Z", dc.Memory().GetString("conversation.context.started"))
	assert.Equal(t, `["Paris"]`, dc.Memory().GetString("conversation.context.entities.city.value"))

	t.Run("expires by turn count", func(t *testing.T) {
		h := *h
		h.t = t
		h.state = h.state.Clone()
		var dc *Context
		for i := 2; i <= 6; i++ {
			dc, _ = h.turn("nothing")
			assert.True(t, dc.Memory().HasPath("conversation.context.entities.city"), "turn %d", i)
		}
		dc, _ = h.turn("nothing")
		assert.Equal(t, 7.0, must(dc.Memory().GetNumber("conversation.context.turnCount")))
		assert.False(t, dc.Memory().HasPath("conversation.context.entities.city"))
	})

	t.Run("expires by time", func(t *testing.T) {
		h := *h
		h.t = t
		h.state = h.state.Clone()
		h.now = h.now.Add(3 * time.Minute)
		dc, _ := h.turn("nothing")
		assert.Equal(t, 2.0, must(dc.Memory().GetNumber("conversation.context.turnCount")))
		assert.False(t, dc.Memory().HasPath("conversation.context.entities.city"))
		assert.Equal(t, "2024-05-01T12:00:00Z", dc.Memory().GetString("conversation.context.started"))
	})
}

func TestRecognize_CachedPerKey(t *testing.T) {
	kw := testutil.NewKeywordRecognizer().Intent("hi", "Greet")
	dc, err := NewContext(NewSet(), testutil.Message("hi"), nil, func(o *Options) { o.Recognizer = kw })
	require.NoError(t, err)

	for range 3 {
		res, err := dc.Recognize(context.Background(), nil, "ignored")
		require.NoError(t, err)
		intent, _ := res.TopIntent()
		assert.Equal(t, "Greet", intent)
	}
	assert.Equal(t, 1, kw.Calls())
	assert.Equal(t, "Greet", dc.Memory().GetString("turn.recognized.intent"))

	_, err = dc.Recognize(context.Background(), kw, "other")
	require.NoError(t, err)
	assert.Equal(t, 2, kw.Calls())
}

func TestRecognize_FailureWrapsSentinel(t *testing.T) {
	boom := errors.New("backend down")
	dc, err := NewContext(NewSet(), testutil.Message("hi"), nil, func(o *Options) {
		o.Recognizer = testutil.FailingRecognizer(boom)
	})
	require.NoError(t, err)

	_, err = dc.Recognize(context.Background(), nil, "")
	assert.ErrorIs(t, err, core.ErrRecognizerUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestRepeatDialog_KeepsBag(t *testing.T) {
	var reasons []Reason
	counter := newFuncDialog("counter", func(_ context.Context, dc *Context) (core.TurnResult, error) {
		n, _ := dc.Memory().GetNumber("dialog.n")
		if err := dc.Memory().SetValue("dialog.n", core.NumberValue(n+1)); err != nil {
			return core.TurnResult{}, err
		}
		reasons = append(reasons, dc.ActiveDialog().Reason)
		dc.SendText("q?")
		return core.TurnResult{Status: core.TurnStatusWaiting}, nil
	})
	h := newHarness(t, "counter", counter)
	h.turn("hi")

	dc := h.context(testutil.Message("again"))
	res, err := dc.RepeatDialog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.TurnStatusWaiting, res.Status)
	assert.Equal(t, 1, dc.Depth())
	assert.Equal(t, "counter", dc.ActiveDialog().ID)
	assert.Equal(t, 2.0, must(dc.Memory().GetNumber("dialog.n")))
	assert.Equal(t, []Reason{ReasonBegin, ReasonBegin}, reasons)
	assert.Equal(t, []string{"q?"}, texts(dc))
}

func TestResume_StepsPlanWithNextCalled(t *testing.T) {
	var reason Reason
	root := NewTriggerDialog("root", []*Trigger{
		OnBeginDialog(
			BeginDialog("child"),
			Do("capture", func(_ context.Context, dc *Context) error {
				reason = dc.ActiveDialog().Reason
				return nil
			}),
		),
	})
	child := NewTriggerDialog("child", []*Trigger{OnBeginDialog(EndDialog("x"))})
	h := newHarness(t, "root", root, child)

	h.turn("hi")
	assert.Equal(t, ReasonNextCalled, reason)
}

func TestStackBalance(t *testing.T) {
	idle := func(id string) Dialog { return NewTriggerDialog(id, nil, noAutoEnd) }
	dialogs := NewSet(idle("a"), idle("b"), idle("c"), idle("d"), idle("e"))

	begin := func(id string) func(context.Context, *Context) error {
		return func(ctx context.Context, dc *Context) error {
			_, err := dc.BeginDialog(ctx, id, core.Null())
			return err
		}
	}
	steps := []struct {
		name  string
		run   func(context.Context, *Context) error
		depth int
		top   string
	}{
		{"begin a", begin("a"), 1, "a"},
		{"begin b", begin("b"), 2, "b"},
		{"begin c", begin("c"), 3, "c"},
		{"replace c with d", func(ctx context.Context, dc *Context) error {
			_, err := dc.ReplaceDialog(ctx, "d", core.Null())
			return err
		}, 3, "d"},
		{"end d", func(ctx context.Context, dc *Context) error {
			_, err := dc.EndDialog(ctx, core.Null())
			return err
		}, 2, "b"},
		{"begin e", begin("e"), 3, "e"},
		{"cancel all", func(ctx context.Context, dc *Context) error {
			_, err := dc.CancelAllDialogs(ctx)
			return err
		}, 0, ""},
		{"begin a again", begin("a"), 1, "a"},
	}

	dc, err := NewContext(dialogs, testutil.Message("hi"), nil)
	require.NoError(t, err)

	for _, step := range steps {
		require.NoError(t, step.run(context.Background(), dc), step.name)
		assert.Equal(t, step.depth, dc.Depth(), step.name)
		if step.top == "" {
			assert.Nil(t, dc.ActiveDialog(), step.name)
			assert.Equal(t, StackCompleted, dc.Status(), step.name)
			continue
		}
		assert.Equal(t, step.top, dc.ActiveDialog().ID, step.name)
		assert.Equal(t, StackRunning, dc.Status(), step.name)
	}
}

func must(n float64, _ bool) float64 { return n }
