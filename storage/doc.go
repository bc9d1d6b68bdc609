// Package storage houses concrete implementations of core.Storage.
//
// InMemoryStorage lives here; durable backends live in sub-packages
// (dynamodb, sqlite) so hosts only pull in the driver they actually use.
// Every backend honours the same contract: Read returns only existing keys,
// Write compares ETags and fails the whole batch with core.ErrETagMismatch,
// and an ETag of "*" means the document must not exist yet.
package storage
