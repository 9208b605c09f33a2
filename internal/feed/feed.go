package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedrelay/feedrelay/internal/cursor"
	"github.com/feedrelay/feedrelay/internal/event"
)

// Feed opens subscriptions to an upstream change feed.
type Feed interface {
	// Open subscribes to the feed. A nil resume token starts from "now";
	// otherwise the stream resumes just after the token's position.
	Open(ctx context.Context, resume cursor.Token) (Stream, error)
}

// Stream is one open subscription. Next blocks until a record is
// available, the context is cancelled, or the stream fails.
type Stream interface {
	Next(ctx context.Context) (event.RawRecord, error)
	Close(ctx context.Context) error
}

// ErrInvalidResumeToken reports that the upstream no longer recognizes
// the stored resume position, typically because its history rolled over
// while the relay was down. Always wrapped in a FatalError: resuming is
// impossible and restarting from "now" loses events, so the decision is
// left to the operator (see the relay controller's start-from-now flag).
var ErrInvalidResumeToken = errors.New("feed: resume token no longer valid upstream")

// TransientError marks a failure worth retrying: the upstream is expected
// to recover and the stream can be reopened from the last committed token.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix, such as rejected
// credentials or a resume token the upstream no longer recognizes.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Fatal wraps err as a FatalError. Returns nil for a nil err.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
