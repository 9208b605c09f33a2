// Package hub fans normalized change events out to subscriber sessions.
//
// Each session owns a bounded outbound queue drained by its transport
// (internal/ws). Publish enqueues without blocking: a session whose queue
// is full stops receiving new events (it enters Draining) and the event is
// counted as dropped for that session only. A slow subscriber therefore
// never stalls the reader pipeline or other subscribers.
//
// Per-session ordering matches publish order. The subscriber set is
// guarded by a lock held only while enumerating and enqueuing, never
// during transport I/O.
package hub
