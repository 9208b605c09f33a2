// Package event defines the canonical change event relayed to subscribers
// and the normalization of raw upstream change records into it.
//
// RawRecord is the shape produced by a feed adapter (internal/feed); Event
// is the shape delivered to hub sessions. Normalize maps one to the other
// and is a pure function: unrecognized operation types yield
// ErrUnknownOperation so callers can log and skip the record without
// stopping the relay.
package event
