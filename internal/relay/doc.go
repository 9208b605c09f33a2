// Package relay owns the lifecycle of the change-event pipeline.
//
// The Controller wires reader → normalizer → hub, supervises the reader,
// and exposes start/stop. It holds the only references to its reader and
// cursor store; there is no process-wide relay state.
//
// State machine: Stopped → Starting → Running, with Running → Restarting
// when transient reader failures exceed the burst threshold (the reader
// is torn down and rebuilt while hub subscribers stay connected), and
// Running/Restarting → Failed on a fatal reader error (no new
// subscribers are admitted; existing ones stay connected but will see no
// further events). Stop is valid from any state.
package relay
