package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/feedrelay/feedrelay/internal/cursor"
	"github.com/feedrelay/feedrelay/internal/event"
)

const (
	// saveRetries is how many times a failed token save is retried inline
	// before the save is skipped. A skipped save only widens the
	// redelivery window; it never loses events.
	saveRetries = 3

	saveRetryDelay = 100 * time.Millisecond
)

// Publisher receives normalized events. Satisfied by *hub.Hub.
type Publisher interface {
	Publish(event.Event)
}

// Hooks are optional callbacks the relay controller uses to observe
// reader health. Nil hooks are skipped.
type Hooks struct {
	// OnRecord fires after each record is read from the upstream.
	OnRecord func()

	// OnTransient fires for each transient failure, before the backoff
	// wait.
	OnTransient func(err error)

	// OnDegraded fires once when the consecutive-failure count reaches
	// the configured threshold. Resets after the next successful record.
	OnDegraded func(consecutive int)
}

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	Feed      Feed
	Cursors   cursor.Store
	Publisher Publisher
	Hooks     Hooks

	// BackoffInitial and BackoffMax bound the retry wait. Zero values
	// select the 500ms / 30s defaults.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// DegradedAfter is the consecutive-failure count that triggers
	// OnDegraded. Zero disables the signal; the reader retries
	// indefinitely either way.
	DegradedAfter int
}

// Reader drives the feed → normalize → publish → commit pipeline on the
// caller's goroutine. One Reader instance serves one feed subscription.
type Reader struct {
	cfg ReaderConfig

	retries atomic.Uint64
	token   cursor.Token // last committed position, loop-local ownership
}

// NewReader creates a Reader. Feed, Cursors and Publisher are required.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Feed == nil || cfg.Cursors == nil || cfg.Publisher == nil {
		return nil, errors.New("feed: reader requires a feed, a cursor store and a publisher")
	}
	return &Reader{cfg: cfg}, nil
}

// Retries returns the total number of transient failures retried so far.
func (r *Reader) Retries() uint64 { return r.retries.Load() }

// Run executes the pull loop until ctx is cancelled or a fatal error
// occurs. Returns nil on cancellation and a FatalError otherwise.
// Transient failures never escape: the loop backs off and reopens the
// feed from the last committed token.
func (r *Reader) Run(ctx context.Context) error {
	if err := r.loadToken(); err != nil {
		return err
	}

	bo := newBackoff(r.cfg.BackoffInitial, r.cfg.BackoffMax)
	consecutive := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		stream, err := r.cfg.Feed.Open(ctx, r.token)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsFatal(err) {
				return fmt.Errorf("reader: open feed: %w", err)
			}
			consecutive++
			if !r.waitRetry(ctx, bo, err, consecutive) {
				return nil
			}
			continue
		}

		err = r.consume(ctx, stream, bo, &consecutive)
		stream.Close(context.Background()) //nolint:errcheck // stream already failed or ctx is gone

		switch {
		case ctx.Err() != nil:
			return nil
		case IsFatal(err):
			return fmt.Errorf("reader: %w", err)
		default:
			consecutive++
			if !r.waitRetry(ctx, bo, err, consecutive) {
				return nil
			}
		}
	}
}

// consume reads records until the stream fails or ctx is cancelled.
// The returned error is always non-nil and classified by the caller.
func (r *Reader) consume(ctx context.Context, stream Stream, bo *backoff, consecutive *int) error {
	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			return err
		}

		bo.reset()
		*consecutive = 0
		if r.cfg.Hooks.OnRecord != nil {
			r.cfg.Hooks.OnRecord()
		}

		ev, err := event.Normalize(rec)
		switch {
		case err == nil:
			r.cfg.Publisher.Publish(ev)
		case errors.Is(err, event.ErrUnknownOperation):
			// Tolerate upstream schema evolution: drop and move on.
			slog.Warn("reader: dropping unrecognized record",
				"op", rec.Op,
				"collection", rec.Collection,
			)
		default:
			slog.Warn("reader: dropping unnormalizable record", "err", err)
		}

		// Commit happens after the hub hand-off — a crash in between
		// redelivers this record, never skips it. Dropped records commit
		// too; replaying them would drop them again.
		r.commitToken(rec.Token)
	}
}

// loadToken populates r.token from the cursor store. A missing token is
// the first-run case: the feed opens from "now".
func (r *Reader) loadToken() error {
	tok, ok, err := r.cfg.Cursors.Load()
	if err != nil {
		return fmt.Errorf("reader: load resume token: %w", Fatal(err))
	}
	if !ok {
		slog.Info("reader: no resume token — starting from now")
		r.token = nil
		return nil
	}
	slog.Info("reader: resuming from stored token", "token_len", len(tok))
	r.token = tok
	return nil
}

// commitToken persists tok, retrying briefly on store errors. Store write
// failures are transient by design: the event is already published, so
// the worst case is a wider redelivery window after a crash.
func (r *Reader) commitToken(tok cursor.Token) {
	if tok == nil {
		return
	}
	var err error
	for attempt := 0; attempt < saveRetries; attempt++ {
		if err = r.cfg.Cursors.Save(tok); err == nil {
			r.token = tok
			return
		}
		time.Sleep(saveRetryDelay)
	}
	slog.Error("reader: token save failed — continuing with previous position", "err", err)
}

// waitRetry records a transient failure and sleeps the backoff wait.
// Returns false when ctx was cancelled during the wait.
func (r *Reader) waitRetry(ctx context.Context, bo *backoff, cause error, consecutive int) bool {
	r.retries.Add(1)
	if r.cfg.Hooks.OnTransient != nil {
		r.cfg.Hooks.OnTransient(cause)
	}
	if r.cfg.DegradedAfter > 0 && consecutive == r.cfg.DegradedAfter && r.cfg.Hooks.OnDegraded != nil {
		r.cfg.Hooks.OnDegraded(consecutive)
	}

	wait := bo.next()
	slog.Warn("reader: upstream failure, will retry",
		"err", cause,
		"retry_in", wait,
		"consecutive", consecutive,
	)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}
