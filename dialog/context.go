package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/memory"
)

const (
	// StackKey is the conversation state key holding the persisted stack.
	StackKey = "_dialogs"

	DefaultMaxStackDepth     = 32
	DefaultMaxActionsPerTurn = 256
)

// Turn scope keys maintained by the Context.
const (
	TurnActivity          = "activity"
	TurnActivityProcessed = "activityProcessed"
	TurnRecognized        = "recognized"
	TurnDialogEvent       = "dialogEvent"
	TurnLastResult        = "lastResult"
)

// StackStatus summarises the stack after (or during) a turn.
type StackStatus string

const (
	StackRunning     StackStatus = "running"
	StackCompleted   StackStatus = "completed"
	StackInterrupted StackStatus = "interrupted"
)

// Options configure a Context.
type Options struct {
	Resolver          memory.PathResolver
	Settings          core.Settings
	Recognizer        core.Recognizer
	MaxStackDepth     int
	MaxActionsPerTurn int
	Logger            logging.Logger
	// Now is the clock used for conversation context expiry.
	Now func() time.Time
}

// Event is a named signal travelling through the stack.
type Event struct {
	Name   string
	Value  core.Value
	Bubble bool
}

// Context owns the dialog stack and memory for one turn. It is not safe for
// concurrent use.
type Context struct {
	dialogs  *Set
	activity core.Activity
	stack    []*Instance
	// focus is the index of the frame currently evaluating an event, or -1
	// for the top frame.
	focus int

	memory       *memory.Registry
	user         *memory.MapScope
	conversation *memory.MapScope
	turn         *memory.MapScope

	opts        Options
	limiter     *core.ActionLimiter
	outbound    []core.Activity
	recognized  map[string]*core.RecognizerResult
	interrupted bool
	logger      logging.Logger

	userETag         string
	conversationETag string
}

// NewContext builds the turn context over snapshot. The snapshot's maps are
// used as the working copy and are mutated in place; callers that need the
// original must pass a clone.
func NewContext(dialogs *Set, activity core.Activity, snapshot *core.PersistedState, optFns ...func(o *Options)) (*Context, error) {
	opts := Options{
		MaxStackDepth:     DefaultMaxStackDepth,
		MaxActionsPerTurn: DefaultMaxActionsPerTurn,
		Logger:            logging.NoOpLogger{},
		Now:               time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if snapshot == nil {
		snapshot = core.NewPersistedState()
	}
	if dialogs == nil {
		dialogs = NewSet()
	}

	conv := snapshot.ConversationState
	if conv == nil {
		conv = core.NewMap()
	}
	raw, _ := conv.Get(StackKey)
	stack, err := DecodeStack(raw)
	if err != nil {
		return nil, err
	}
	conv.Delete(StackKey)

	dc := &Context{
		dialogs:          dialogs,
		activity:         activity,
		stack:            stack,
		focus:            -1,
		opts:             opts,
		limiter:          core.NewActionLimiter(opts.MaxActionsPerTurn),
		recognized:       map[string]*core.RecognizerResult{},
		logger:           logging.OrNoOp(opts.Logger),
		userETag:         snapshot.UserETag,
		conversationETag: snapshot.ConversationETag,
	}

	turn := core.NewMap()
	turn.Set(TurnActivity, activity.ToValue())
	turn.Set(TurnActivityProcessed, core.BoolValue(false))

	dc.user = memory.NewMapScope(memory.ScopeUser, snapshot.UserState)
	dc.conversation = memory.NewMapScope(memory.ScopeConversation, conv)
	dc.turn = memory.NewMapScope(memory.ScopeTurn, turn)
	dc.memory = memory.NewRegistry(opts.Resolver,
		dc.user,
		dc.conversation,
		dc.turn,
		memory.NewSettingsScope(opts.Settings),
		memory.NewFuncScope(memory.ScopeDialog, false, dc.dialogRoot),
		memory.NewFuncScope(memory.ScopeThis, false, dc.thisRoot),
		memory.NewFuncScope(memory.ScopeClass, true, dc.classRoot),
		memory.NewFuncScope(memory.ScopeDialogClass, true, dc.dialogClassRoot),
		memory.NewFuncScope(memory.ScopeDialogContext, true, dc.dialogContextRoot),
	)

	conversationRoot, _ := dc.conversation.Root()
	beginConversationTurn(conversationRoot, opts.Now())
	return dc, nil
}

// Activity returns the inbound activity of this turn.
func (dc *Context) Activity() core.Activity { return dc.activity }

// Memory returns the memory registry of this turn.
func (dc *Context) Memory() *memory.Registry { return dc.memory }

// Logger returns the context logger.
func (dc *Context) Logger() logging.Logger { return dc.logger }

// Limiter returns the per-turn action limiter.
func (dc *Context) Limiter() *core.ActionLimiter { return dc.limiter }

// Stack returns the frames bottom first. The slice is a copy; the frames are not.
func (dc *Context) Stack() []*Instance {
	out := make([]*Instance, len(dc.stack))
	copy(out, dc.stack)
	return out
}

// Depth returns the number of frames.
func (dc *Context) Depth() int { return len(dc.stack) }

// ActiveDialog returns the top frame or nil.
func (dc *Context) ActiveDialog() *Instance {
	if len(dc.stack) == 0 {
		return nil
	}
	return dc.stack[len(dc.stack)-1]
}

// Status reports the stack state.
func (dc *Context) Status() StackStatus {
	switch {
	case dc.interrupted:
		return StackInterrupted
	case len(dc.stack) == 0:
		return StackCompleted
	default:
		return StackRunning
	}
}

// Outbound returns the activities sent so far.
func (dc *Context) Outbound() []core.Activity {
	out := make([]core.Activity, len(dc.outbound))
	copy(out, dc.outbound)
	return out
}

// SendActivity queues an outbound activity.
func (dc *Context) SendActivity(a core.Activity) {
	dc.outbound = append(dc.outbound, a)
}

// SendText queues a reply message to the inbound activity.
func (dc *Context) SendText(text string) {
	dc.SendActivity(dc.activity.CreateReply(text))
}

// Persist returns a copy of the working state with the stack written back
// under StackKey and the ETags the snapshot was loaded with.
func (dc *Context) Persist() *core.PersistedState {
	user, _ := dc.user.Root()
	conv, _ := dc.conversation.Root()
	persisted := conv.Clone()
	persisted.Set(StackKey, EncodeStack(dc.stack).Clone())
	return &core.PersistedState{
		UserState:         user.Clone(),
		ConversationState: persisted,
		UserETag:          dc.userETag,
		ConversationETag:  dc.conversationETag,
	}
}

// BeginDialog pushes a new frame for id and starts it. An unknown id fails
// with core.ErrDialogNotFound and leaves the stack unchanged.
func (dc *Context) BeginDialog(ctx context.Context, id string, options core.Value) (core.TurnResult, error) {
	d, ok := dc.dialogs.Find(id)
	if !ok {
		return dc.fail(fmt.Errorf("%w: %q", core.ErrDialogNotFound, id))
	}
	if limit := dc.opts.MaxStackDepth; limit > 0 && len(dc.stack) >= limit {
		return dc.fail(fmt.Errorf("%w: depth %d", core.ErrStackOverflow, limit))
	}

	inst := newInstance(id, options)
	dc.stack = append(dc.stack, inst)
	dc.logger.Debug("dialog.push", "dialog_id", id, "depth", len(dc.stack))

	return dc.track(d.Begin(ctx, dc, options))
}

// ContinueDialog hands the current activity to the top frame.
func (dc *Context) ContinueDialog(ctx context.Context) (core.TurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return core.TurnResult{Status: core.TurnStatusEmpty}, nil
	}
	d, err := dc.dialogFor(inst)
	if err != nil {
		return dc.fail(err)
	}
	inst.Reason = ReasonContinue
	return dc.track(d.Continue(ctx, dc))
}

// EndDialog pops the top frame and delivers result to the new top frame.
// With nothing left the turn is complete and carries result.
func (dc *Context) EndDialog(ctx context.Context, result core.Value) (core.TurnResult, error) {
	if inst := dc.ActiveDialog(); inst != nil {
		if err := dc.pop(ctx, ReasonEndCalled); err != nil {
			return dc.fail(err)
		}
	}

	parent := dc.ActiveDialog()
	if parent == nil {
		return core.TurnResult{Status: core.TurnStatusComplete, Result: result}, nil
	}
	d, err := dc.dialogFor(parent)
	if err != nil {
		return dc.fail(err)
	}
	parent.Reason = ReasonEndCalled
	if err := dc.turnSet(TurnLastResult, result); err != nil {
		return dc.fail(err)
	}
	res, err := d.Resume(ctx, dc, ReasonEndCalled, result)
	res.ParentEnded = true
	return dc.track(res, err)
}

// ReplaceDialog ends the top frame without resuming its parent and begins id
// in its place. The id is validated before anything is popped.
func (dc *Context) ReplaceDialog(ctx context.Context, id string, options core.Value) (core.TurnResult, error) {
	if _, ok := dc.dialogs.Find(id); !ok {
		return dc.fail(fmt.Errorf("%w: %q", core.ErrDialogNotFound, id))
	}
	if dc.ActiveDialog() != nil {
		if err := dc.pop(ctx, ReasonReplaceCalled); err != nil {
			return dc.fail(err)
		}
	}
	return dc.BeginDialog(ctx, id, options)
}

// RepeatDialog restarts the top frame with its stored options. The dialog
// bag survives, pending plans do not.
func (dc *Context) RepeatDialog(ctx context.Context) (core.TurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return core.TurnResult{Status: core.TurnStatusEmpty}, nil
	}
	d, err := dc.dialogFor(inst)
	if err != nil {
		return dc.fail(err)
	}
	inst.Plans = nil
	inst.This = core.NewMap()
	inst.Reason = ReasonBegin
	inst.Status = StatusActive
	return dc.track(d.Begin(ctx, dc, inst.Options))
}

// RepromptDialog asks the top frame to re-send its pending prompt.
func (dc *Context) RepromptDialog(ctx context.Context) error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	d, err := dc.dialogFor(inst)
	if err != nil {
		return err
	}
	return d.Reprompt(ctx, dc, inst)
}

// CancelAllDialogs pops every frame top to bottom.
func (dc *Context) CancelAllDialogs(ctx context.Context) (core.TurnResult, error) {
	for len(dc.stack) > 0 {
		if err := dc.pop(ctx, ReasonCancelCalled); err != nil {
			return dc.fail(err)
		}
	}
	return core.TurnResult{Status: core.TurnStatusCancelled}, nil
}

// EmitEvent offers an event to the top frame and, when bubble is set and the
// event stays unhandled, to each frame below it. The first handler wins.
func (dc *Context) EmitEvent(ctx context.Context, name string, value core.Value, bubble bool) (bool, core.TurnResult, error) {
	ev := &Event{Name: name, Value: value, Bubble: bubble}

	payload := core.NewMap()
	payload.Set("name", core.StringValue(name))
	payload.Set("value", value)
	payload.Set("bubble", core.BoolValue(bubble))
	if err := dc.turnSet(TurnDialogEvent, core.MapValue(payload)); err != nil {
		return false, core.TurnResult{}, err
	}

	for i := len(dc.stack) - 1; i >= 0; i-- {
		inst := dc.stack[i]
		d, err := dc.dialogFor(inst)
		if err != nil {
			return false, core.TurnResult{}, err
		}

		prev := dc.focus
		dc.focus = i
		handled, res, err := d.OnEvent(ctx, dc, inst, ev)
		dc.focus = prev
		if err != nil {
			dc.interrupted = true
			return false, core.TurnResult{}, err
		}
		if handled {
			dc.logger.Debug("dialog.event_handled", "event", name, "dialog_id", inst.ID)
			return true, res, nil
		}
		if !bubble {
			break
		}
	}
	return false, dc.idleResult(), nil
}

// InterruptAbove cancels every frame above inst so inst becomes the top
// frame. Dialogs call it before running a handler for an event that bubbled
// up from a child.
func (dc *Context) InterruptAbove(ctx context.Context, inst *Instance) error {
	idx := dc.indexOf(inst)
	if idx < 0 {
		return fmt.Errorf("frame %s is not on the stack", inst.InstanceID)
	}
	for len(dc.stack)-1 > idx {
		if err := dc.pop(ctx, ReasonCancelCalled); err != nil {
			return err
		}
	}
	dc.focus = -1
	return nil
}

// Recognize runs r (or the default recognizer when r is nil) on the turn's
// activity once per cache key and publishes the result at turn.recognized.
func (dc *Context) Recognize(ctx context.Context, r core.Recognizer, cacheKey string) (*core.RecognizerResult, error) {
	if r == nil {
		r, cacheKey = dc.opts.Recognizer, ""
	}
	res, ok := dc.recognized[cacheKey]
	if !ok {
		var err error
		res, err = dc.runRecognizer(ctx, r)
		if err != nil {
			return nil, err
		}
		dc.recognized[cacheKey] = res
		conv, _ := dc.conversation.Root()
		rememberEntities(conv, res.Entities, dc.opts.Now())
	}
	if err := dc.turnSet(TurnRecognized, res.ToValue()); err != nil {
		return nil, err
	}
	return res, nil
}

func (dc *Context) runRecognizer(ctx context.Context, r core.Recognizer) (*core.RecognizerResult, error) {
	if r == nil {
		return core.NewRecognizerResult(dc.activity.Text), nil
	}
	start := time.Now()
	res, err := r.Recognize(ctx, dc.activity, nil)
	if err != nil {
		dc.logRecognition(r, "", 0, time.Since(start), err)
		if errors.Is(err, core.ErrRecognizerUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrRecognizerUnavailable, err)
	}
	if res == nil {
		res = core.NewRecognizerResult(dc.activity.Text)
	}
	intent, score := res.TopIntent()
	dc.logRecognition(r, intent, score, time.Since(start), nil)
	return res, nil
}

func (dc *Context) logRecognition(r core.Recognizer, intent string, score float64, dur time.Duration, err error) {
	name := fmt.Sprintf("%T", r)
	if l, ok := dc.logger.(*logging.DialogMeshLogger); ok {
		l.WithConversation(dc.activity.Conversation.ID(), dc.activity.ID).LogRecognition(name, intent, score, dur, err)
		return
	}
	if err != nil {
		dc.logger.Warn("recognizer.failed", "recognizer", name, "error", err, "duration_ms", dur.Milliseconds())
		return
	}
	dc.logger.Debug("recognizer.result", "recognizer", name, "intent", intent, "score", score, "duration_ms", dur.Milliseconds())
}

// MarkActivityProcessed records that a dialog consumed the inbound activity
// so dialogs begun later in the turn do not process it again.
func (dc *Context) MarkActivityProcessed() {
	_ = dc.turnSet(TurnActivityProcessed, core.BoolValue(true))
}

// ActivityProcessed reports whether a dialog already consumed the activity.
func (dc *Context) ActivityProcessed() bool {
	return dc.memory.GetBool(memory.ScopeTurn + "." + TurnActivityProcessed)
}

func (dc *Context) pop(ctx context.Context, reason Reason) error {
	inst := dc.ActiveDialog()
	d, err := dc.dialogFor(inst)
	if err != nil {
		return err
	}
	inst.Status = StatusEnding
	if err := d.End(ctx, dc, inst, reason); err != nil {
		return err
	}
	dc.stack = dc.stack[:len(dc.stack)-1]
	dc.logger.Debug("dialog.pop", "dialog_id", inst.ID, "reason", string(reason), "depth", len(dc.stack))
	return nil
}

func (dc *Context) dialogFor(inst *Instance) (Dialog, error) {
	d, ok := dc.dialogs.Find(inst.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrDialogNotFound, inst.ID)
	}
	return d, nil
}

func (dc *Context) indexOf(inst *Instance) int {
	for i := len(dc.stack) - 1; i >= 0; i-- {
		if dc.stack[i] == inst {
			return i
		}
	}
	return -1
}

func (dc *Context) focused() *Instance {
	if dc.focus >= 0 && dc.focus < len(dc.stack) {
		return dc.stack[dc.focus]
	}
	return dc.ActiveDialog()
}

func (dc *Context) idleResult() core.TurnResult {
	if len(dc.stack) == 0 {
		return core.TurnResult{Status: core.TurnStatusEmpty}
	}
	return core.TurnResult{Status: core.TurnStatusWaiting}
}

func (dc *Context) turnSet(key string, v core.Value) error {
	return dc.memory.SetValue(memory.ScopeTurn+"."+key, v)
}

func (dc *Context) fail(err error) (core.TurnResult, error) {
	dc.interrupted = true
	return core.TurnResult{}, err
}

func (dc *Context) track(res core.TurnResult, err error) (core.TurnResult, error) {
	if err != nil {
		return dc.fail(err)
	}
	return res, nil
}

func (dc *Context) dialogRoot() (*core.Map, bool) {
	inst := dc.focused()
	if inst == nil {
		return nil, false
	}
	return inst.State, true
}

func (dc *Context) thisRoot() (*core.Map, bool) {
	inst := dc.focused()
	if inst == nil {
		return nil, false
	}
	return inst.This, true
}

// classRoot exposes the focused dialog's class memory.
func (dc *Context) classRoot() (*core.Map, bool) {
	inst := dc.focused()
	if inst == nil {
		return nil, false
	}
	d, ok := dc.dialogs.Find(inst.ID)
	if !ok {
		return nil, false
	}
	cp, ok := d.(ClassProvider)
	if !ok {
		return nil, false
	}
	return cp.ClassMemory(), true
}

// dialogClassRoot exposes the class memory of the nearest frame, from the
// focused one downwards, whose dialog provides one.
func (dc *Context) dialogClassRoot() (*core.Map, bool) {
	start := dc.focus
	if start < 0 || start >= len(dc.stack) {
		start = len(dc.stack) - 1
	}
	for i := start; i >= 0; i-- {
		d, ok := dc.dialogs.Find(dc.stack[i].ID)
		if !ok {
			continue
		}
		if cp, ok := d.(ClassProvider); ok {
			return cp.ClassMemory(), true
		}
	}
	return nil, false
}

func (dc *Context) dialogContextRoot() (*core.Map, bool) {
	m := core.NewMap()
	ids := core.NewList()
	for i := len(dc.stack) - 1; i >= 0; i-- {
		ids.Append(core.StringValue(dc.stack[i].ID))
	}
	m.Set("stack", core.ListValue(ids))
	if inst := dc.ActiveDialog(); inst != nil {
		m.Set("activeDialog", core.StringValue(inst.ID))
	}
	if len(dc.stack) > 1 {
		m.Set("parent", core.StringValue(dc.stack[len(dc.stack)-2].ID))
	}
	return m, true
}
