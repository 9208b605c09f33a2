// Package mongofeed implements the feed contract on top of MongoDB
// change streams.
//
// Each opened stream watches a single collection with fullDocument:
// updateLookup, so update records carry both the delta and the current
// document. The stream's resume token (the raw _id document of the last
// change) is passed through opaquely; resuming uses resumeAfter.
//
// Driver errors are mapped onto the feed taxonomy: network and server
// selection failures are transient, authentication failures are fatal,
// and ChangeStreamHistoryLost (the oplog rolled past the stored token)
// is fatal wrapping feed.ErrInvalidResumeToken so the relay controller
// can apply its start-from-now policy.
package mongofeed
