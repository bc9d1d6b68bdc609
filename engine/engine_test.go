package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialog"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func texts(out *core.TurnOutput) []string {
	var res []string
	for _, a := range out.Activities {
		res = append(res, a.Text)
	}
	return res
}

func newEngine(t *testing.T, root dialog.Dialog, optFns ...func(o *Options)) *Engine {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) { o.RootDialog = root.ID() }}, optFns...)
	return New(dialog.NewSet(root), fns...)
}

func TestEngine_ProcessTurn_Hello(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SendActivity("hello")),
	}))

	snapshot := core.NewPersistedState()
	out, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), snapshot)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"hello"}, texts(out)); diff != "" {
		t.Errorf("outbound mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, core.TurnStatusComplete, out.Result.Status)

	stack, ok := out.State.ConversationState.Get(dialog.StackKey)
	require.True(t, ok)
	frames, err := dialog.DecodeStack(stack)
	require.NoError(t, err)
	assert.Empty(t, frames)

	assert.Zero(t, snapshot.ConversationState.Len(), "input snapshot must not change")
	assert.Zero(t, snapshot.UserState.Len())
}

func TestEngine_ProcessTurn_AskAcrossTurns(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.AskFor("Name?", "user.name"), dialog.SendActivity("thanks")),
	}))
	ctx := context.Background()

	out, err := eng.ProcessTurn(ctx, testutil.Message("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name?"}, texts(out))
	assert.Equal(t, core.TurnStatusWaiting, out.Result.Status)

	out, err = eng.ProcessTurn(ctx, testutil.Message("Ada"), out.State)
	require.NoError(t, err)
	assert.Equal(t, []string{"thanks"}, texts(out))
	assert.Equal(t, core.TurnStatusComplete, out.Result.Status)

	name, ok := out.State.UserState.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Ada", name.String())
}

func TestEngine_ProcessTurn_FrameErrorDiscardsTurn(t *testing.T) {
	boom := errors.New("boom")
	var onError []error

	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(
			dialog.SetProperty("user.touched", true),
			dialog.SendActivity("partial"),
			dialog.Do("explode", func(context.Context, *dialog.Context) error { return boom }),
		),
	}))
	eng.Callbacks().RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, c *CallbackContext) error {
		onError = append(onError, c.Err)
		return nil
	}))

	snapshot := testutil.NewSnapshotBuilder().User("name", "Ada").Build()
	out, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), snapshot)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, core.ErrFrameEvaluation)
	assert.ErrorIs(t, err, boom)

	var fe *core.FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "main", fe.DialogID)
	assert.Equal(t, "explode", fe.Action)

	require.Len(t, onError, 1)
	assert.ErrorIs(t, onError[0], boom)
	assert.False(t, snapshot.UserState.Has("touched"))
	assert.False(t, snapshot.ConversationState.Has(dialog.StackKey))
}

func TestEngine_ProcessTurn_BeforeTurnAborts(t *testing.T) {
	ran := false
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.Do("mark", func(context.Context, *dialog.Context) error {
			ran = true
			return nil
		})),
	}))
	eng.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, func(_ context.Context, c *CallbackContext) error {
		require.NotNil(t, c.Dialog)
		assert.Equal(t, CallbackBeforeTurn, c.CallbackType)
		return errors.New("denied")
	}))

	_, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), nil)
	assert.ErrorContains(t, err, "denied")
	assert.False(t, ran)
}

func TestEngine_ProcessTurn_StateValidation(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SetProperty("user.blocked", true)),
	}))
	eng.Callbacks().RegisterCallback(StateValidationCallback(func(s *core.PersistedState) error {
		if v, ok := s.UserState.Get("blocked"); ok && v.Truthy() {
			return errors.New("blocked user")
		}
		return nil
	}))

	_, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), nil)
	assert.ErrorContains(t, err, "state validation failed: blocked user")
}

func TestEngine_ProcessTurn_CancelledContext(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SendActivity("hello")),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := eng.ProcessTurn(ctx, testutil.Message("hi"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestEngine_ProcessTurn_NoRoot(t *testing.T) {
	eng := New(nil)
	_, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), nil)
	assert.ErrorIs(t, err, core.ErrDialogNotFound)

	eng.SetRootDialog("missing")
	assert.Equal(t, "missing", eng.RootDialog())
	_, err = eng.ProcessTurn(context.Background(), testutil.Message("hi"), nil)
	assert.ErrorIs(t, err, core.ErrDialogNotFound)
}

func TestEngine_ProcessTurn_ActionLimit(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SendActivity("again"), dialog.RepeatDialog()),
	}), func(o *Options) { o.Config.MaxActionsPerTurn = 6 })

	_, err := eng.ProcessTurn(context.Background(), testutil.Message("hi"), nil)
	assert.ErrorIs(t, err, core.ErrActionLimit)
}

func TestEngine_ProcessTurn_LogsTurn(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf

	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SendActivity("hello")),
	}), func(o *Options) { o.Logger = logging.NewLogger(cfg) })

	a := testutil.NewActivityBuilder().Text("hi").Conversation("42").ID("a1").Build()
	_, err := eng.ProcessTurn(context.Background(), a, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Turn completed"`)
	assert.Contains(t, out, `"conversation_id":"42"`)
	assert.Contains(t, out, `"activity_id":"a1"`)
	assert.Contains(t, out, `"component":"engine"`)
}

func TestEngine_LoggingCallback(t *testing.T) {
	var lines []string
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.SendActivity("hello")),
	}))
	eng.Callbacks().RegisterCallback(LoggingCallback(CallbackAfterTurn, func(s string) { lines = append(lines, s) }))
	assert.Equal(t, 1, eng.Callbacks().Count(CallbackAfterTurn))

	a := testutil.NewActivityBuilder().Text("hi").Conversation("42").ID("a1").Build()
	_, err := eng.ProcessTurn(context.Background(), a, nil)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "[after_turn] conversation=42 activity=a1 status=complete", lines[0])
}

func TestEngine_ConcurrentTurns(t *testing.T) {
	eng := newEngine(t, dialog.NewTriggerDialog("main", []*dialog.Trigger{
		dialog.OnBeginDialog(dialog.AskFor("Name?", "user.name"), dialog.SendActivity("thanks")),
	}))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := fmt.Sprintf("c%d", i)
			out, err := eng.ProcessTurn(context.Background(), testutil.NewActivityBuilder().Text("hi").Conversation(conv).Build(), nil)
			if err != nil {
				errs[i] = err
				return
			}
			name := strings.ToUpper(conv)
			out, err = eng.ProcessTurn(context.Background(), testutil.NewActivityBuilder().Text(name).Conversation(conv).Build(), out.State)
			if err != nil {
				errs[i] = err
				return
			}
			if v, _ := out.State.UserState.Get("name"); v.String() != name {
				errs[i] = fmt.Errorf("conversation %s: got name %q", conv, v.String())
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}
