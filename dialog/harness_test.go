package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
)

// harness drives turns the way the engine does: begin the root on an
// empty stack, continue otherwise, carry the persisted state forward.
type harness struct {
	t          *testing.T
	root       string
	dialogs    *Set
	recognizer core.Recognizer
	settings   core.Settings
	state      *core.PersistedState
	now        time.Time
	maxActions int
	maxDepth   int
}

func newHarness(t *testing.T, root string, dialogs ...Dialog) *harness {
	return &harness{
		t:       t,
		root:    root,
		dialogs: NewSet(dialogs...),
		state:   core.NewPersistedState(),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *harness) context(a core.Activity) *Context {
	h.t.Helper()
	dc, err := NewContext(h.dialogs, a, h.state, func(o *Options) {
		o.Recognizer = h.recognizer
		o.Settings = h.settings
		o.Now = func() time.Time { return h.now }
		if h.maxActions > 0 {
			o.MaxActionsPerTurn = h.maxActions
		}
		if h.maxDepth > 0 {
			o.MaxStackDepth = h.maxDepth
		}
	})
	require.NoError(h.t, err)
	return dc
}

func (h *harness) try(text string) (*Context, core.TurnResult, error) {
	h.t.Helper()
	dc := h.context(testutil.Message(text))
	ctx := context.Background()

	var (
		res core.TurnResult
		err error
	)
	if dc.Depth() == 0 {
		res, err = dc.BeginDialog(ctx, h.root, core.Null())
	} else {
		res, err = dc.ContinueDialog(ctx)
	}
	if err == nil {
		h.state = dc.Persist()
	}
	return dc, res, err
}

func (h *harness) turn(text string) (*Context, core.TurnResult) {
	h.t.Helper()
	dc, res, err := h.try(text)
	require.NoError(h.t, err)
	return dc, res
}

func texts(dc *Context) []string {
	var out []string
	for _, a := range dc.Outbound() {
		out = append(out, a.Text)
	}
	return out
}

// funcDialog is a minimal Dialog whose Begin is supplied by the test.
type funcDialog struct {
	Base
	begin func(ctx context.Context, dc *Context) (core.TurnResult, error)
}

func newFuncDialog(id string, begin func(ctx context.Context, dc *Context) (core.TurnResult, error)) *funcDialog {
	return &funcDialog{Base: NewBase(id), begin: begin}
}

func (d *funcDialog) Begin(ctx context.Context, dc *Context, _ core.Value) (core.TurnResult, error) {
	return d.begin(ctx, dc)
}

func waiting(context.Context, *Context) (core.TurnResult, error) {
	return core.TurnResult{Status: core.TurnStatusWaiting}, nil
}

func noAutoEnd(o *TriggerDialogOptions) { o.AutoEndDialog = false }
