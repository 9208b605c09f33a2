// Package feed defines the upstream change-feed contract and the Reader
// that drives the relay pipeline.
//
// A Feed yields an ordered, resumable stream of raw change records.
// Implementations signal transient failures (network loss, upstream
// restart) with Transient errors and unrecoverable ones (bad credentials,
// permanently invalidated resume position) with Fatal errors.
//
// Reader owns the pull loop: it loads the resume token, opens the feed,
// normalizes each record, publishes it to the hub, then commits the token
// — in that order, so a crash redelivers rather than skips (at-least-once).
// Transient failures are retried in place with truncated exponential
// backoff and full jitter, reopening the feed from the last committed
// token. Fatal failures stop the Reader and are escalated to the relay
// controller.
package feed
