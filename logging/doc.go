// Package logging provides a minimal logging interface and adapters for DialogMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, dialogs, recognizers and storage backends use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - DialogMeshLogger with conversation scoped attributes and turn helpers
//   - ZerologAdapter for hosts that already run zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(dialogs, func(o *engine.Options) { o.Logger = logger })
//
// The interface stays minimal so any structured logger can be plugged in.
package logging
