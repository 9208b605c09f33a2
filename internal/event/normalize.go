package event

import (
	"errors"
	"fmt"
)

// ErrUnknownOperation reports a record whose operation type is not one of
// the four recognized kinds. Callers are expected to log and skip the
// record; upstream schema evolution must never stop the relay.
var ErrUnknownOperation = errors.New("event: unknown operation type")

// Normalize maps a raw upstream change record to a canonical Event.
//
// insert, replace → payload is the full document (the key if the upstream
// omitted the document). update → payload is the changed-field delta plus
// the removed field names. delete → payload is the document key only.
func Normalize(rec RawRecord) (Event, error) {
	ev := Event{
		ID:         rec.ID,
		Collection: rec.Collection,
	}

	switch rec.Op {
	case "insert":
		ev.Kind = KindInsert
		ev.Payload = fullDocument(rec)
	case "replace":
		ev.Kind = KindReplace
		ev.Payload = fullDocument(rec)
	case "update":
		ev.Kind = KindUpdate
		ev.Payload = rec.Updated
		if ev.Payload == nil {
			ev.Payload = map[string]any{}
		}
		ev.Removed = rec.Removed
	case "delete":
		ev.Kind = KindDelete
		ev.Payload = rec.Key
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownOperation, rec.Op)
	}

	return ev, nil
}

// fullDocument returns the record's document, falling back to the key when
// the upstream did not include one.
func fullDocument(rec RawRecord) map[string]any {
	if rec.Document != nil {
		return rec.Document
	}
	return rec.Key
}
