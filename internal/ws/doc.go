// Package ws bridges hub sessions to browser clients over WebSocket.
//
// Handler upgrades the HTTP connection, registers a hub session, sends a
// hello frame carrying the session id and current relay state, then
// streams normalized change events as JSON. Ping/pong keepalive detects
// dead peers; a session whose relay has failed keeps its connection but
// receives no further events (the hello frame's relay_state lets clients
// detect this on reconnect).
//
// Clients must tolerate duplicate events: after an unclean relay restart
// the upstream positions between the last committed token and the crash
// are redelivered (at-least-once).
//
// Frame format:
//
//	{"event": "hello", "session": "<uuid>", "relay_state": "running"}
//	{"event": "insert", "id": "...", "collection": "messages", "data": {...}}
//	{"event": "update", "id": "...", "collection": "messages", "data": {...}, "removed": [...]}
package ws
