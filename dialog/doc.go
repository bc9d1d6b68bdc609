// Package dialog implements the dialog stack that drives a conversation.
//
// A Context owns the stack for one turn. Frames (Instances) are pushed with
// BeginDialog, popped with EndDialog, and the top frame receives every new
// activity through ContinueDialog. Events emitted on the stack are offered to
// the top frame first and, when bubbling, to each frame below; a lower frame
// that handles a bubbled event cancels the frames above it.
//
// TriggerDialog is the scripted dialog: triggers bind events and intents to
// lists of actions, selected by priority and guarded by conditions evaluated
// against the memory registry. Running triggers are persisted as plans so a
// prompt can wait for the next turn and a child dialog can hand a result
// back to its parent mid-plan.
//
// The stack itself is persisted in conversation state under StackKey.
package dialog
