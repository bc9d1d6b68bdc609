// Package core provides the foundational domain types and interfaces used by
// DialogMesh. It defines:
//
//   - Value, Map and List, the dynamically typed memory model
//   - Activity and ConversationReference (inbound / outbound messages)
//   - RecognizerResult and the Recognizer interface
//   - PersistedState and the Storage / ActivitySink interfaces
//   - TurnResult and the sentinel errors shared by every package
//
// Implementation concerns (memory scopes, dialogs, persistence backends) live
// in their own packages and depend on these small interfaces.
package core
