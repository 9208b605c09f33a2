// Package cursor persists the relay's resume position in the upstream
// change feed.
//
// The token is written only after the corresponding event has been handed
// to the hub, so a crash can redeliver events but never skip them
// (at-least-once). The reader pipeline is the sole writer; Load may be
// called concurrently for diagnostics.
//
// BoltStore is the production implementation, backed by a bbolt file.
// MemoryStore exists for tests and for the start-from-now fallback.
package cursor
