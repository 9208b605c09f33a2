// Package api implements the read-only HTTP status surface for feedrelayd.
//
// GET /api/v1/health — liveness probe with the relay state.
// GET /api/v1/status — controller state, reader retry count and
// per-session queue depth / dropped-event counters, for an external
// metrics collector or operator.
package api
