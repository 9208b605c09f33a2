package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feedrelay/feedrelay/internal/cursor"
	"github.com/feedrelay/feedrelay/internal/feed"
	"github.com/feedrelay/feedrelay/internal/hub"
)

// Defaults applied when Config fields are zero.
const (
	DefaultGracePeriod   = 10 * time.Second
	DefaultFailureBurst  = 5
	DefaultFailureWindow = time.Minute
)

// State is the controller's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateFailed
)

// String returns the lowercase state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrAlreadyStarted is returned by Start when the controller is not
// Stopped.
var ErrAlreadyStarted = errors.New("relay: already started")

// Config wires a Controller.
type Config struct {
	Feed    feed.Feed
	Cursors cursor.Store
	Hub     *hub.Hub

	// GracePeriod bounds the Starting state: with a silent upstream the
	// controller still reports Running after this long (healthy idle).
	GracePeriod time.Duration

	// FailureBurst transient failures within FailureWindow tear down and
	// rebuild the reader (Running → Restarting). Subscribers keep their
	// connections throughout.
	FailureBurst  int
	FailureWindow time.Duration

	// Reader retry tuning, passed through to feed.ReaderConfig.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	DegradedAfter  int

	// StartFromNowOnInvalidToken opts in to the data-loss-accepting
	// fallback: when the upstream reports the stored resume token as
	// permanently invalid, clear it and reopen from "now" instead of
	// entering Failed.
	StartFromNowOnInvalidToken bool
}

// Controller supervises the reader pipeline and exposes its health.
// Safe for concurrent use.
type Controller struct {
	cfg Config

	state atomic.Int32

	mu           sync.Mutex
	cancel       context.CancelFunc // cancels the run loop
	readerCancel context.CancelFunc // cancels the current reader only
	reader       *feed.Reader
	baseRetries  uint64      // retries from torn-down readers
	failures     []time.Time // transient-failure timestamps inside the window
	done         chan struct{}

	now func() time.Time // injectable for deterministic tests
}

// New validates cfg and returns a Controller in the Stopped state.
func New(cfg Config) (*Controller, error) {
	if cfg.Feed == nil || cfg.Cursors == nil || cfg.Hub == nil {
		return nil, errors.New("relay: controller requires a feed, a cursor store and a hub")
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.FailureBurst <= 0 {
		cfg.FailureBurst = DefaultFailureBurst
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = DefaultFailureWindow
	}
	return &Controller{cfg: cfg, now: time.Now}, nil
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Retries returns the total transient failures retried across all reader
// incarnations.
func (c *Controller) Retries() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.baseRetries
	if c.reader != nil {
		n += c.reader.Retries()
	}
	return n
}

// Start moves Stopped → Starting, loads the resume token and opens the
// reader pipeline on a background goroutine. ctx bounds the whole relay;
// Stop cancels it early.
func (c *Controller) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.cfg.Hub.SetAccepting(true)

	go func() {
		defer close(done)
		c.run(runCtx)
	}()
	return nil
}

// Stop is callable from any state. It cancels the reader's in-flight
// wait, waits for the run loop to exit, then drains and closes every hub
// session.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.cfg.Hub.Shutdown()
	c.state.Store(int32(StateStopped))
	slog.Info("relay: stopped")
}

// run builds and supervises reader incarnations until ctx is cancelled or
// a fatal error wins.
func (c *Controller) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runReader(ctx)

		switch {
		case ctx.Err() != nil:
			// Stop() path; Stop sets the final state.
			return

		case err == nil:
			// Reader cancelled by the burst tracker: rebuild with the
			// hub and its sessions untouched.
			slog.Info("relay: rebuilding reader after failure burst")

		case errors.Is(err, feed.ErrInvalidResumeToken) && c.cfg.StartFromNowOnInvalidToken:
			slog.Warn("relay: resume token invalidated upstream — restarting from now (events between may be lost)")
			if cerr := c.cfg.Cursors.Clear(); cerr != nil {
				c.fail(fmt.Errorf("relay: clear invalid token: %w", cerr))
				return
			}
			c.state.Store(int32(StateRestarting))

		default:
			c.fail(err)
			return
		}
	}
}

// runReader runs one reader incarnation to completion. A nil return means
// the reader's context was cancelled (burst restart or Stop).
func (c *Controller) runReader(ctx context.Context) error {
	readerCtx, readerCancel := context.WithCancel(ctx)
	defer readerCancel()

	r, err := feed.NewReader(feed.ReaderConfig{
		Feed:      c.cfg.Feed,
		Cursors:   c.cfg.Cursors,
		Publisher: c.cfg.Hub,
		Hooks: feed.Hooks{
			OnRecord:    c.noteRecord,
			OnTransient: c.noteTransient,
			OnDegraded: func(n int) {
				slog.Warn("relay: reader degraded — upstream unreachable", "consecutive_failures", n)
			},
		},
		BackoffInitial: c.cfg.BackoffInitial,
		BackoffMax:     c.cfg.BackoffMax,
		DegradedAfter:  c.cfg.DegradedAfter,
	})
	if err != nil {
		return feed.Fatal(err)
	}

	c.mu.Lock()
	c.reader = r
	c.readerCancel = readerCancel
	c.mu.Unlock()

	// A silent upstream is healthy idle: report Running once the grace
	// period passes without a record.
	grace := time.AfterFunc(c.cfg.GracePeriod, func() {
		if c.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
			slog.Info("relay: running (idle upstream after grace period)")
		}
	})

	err = r.Run(readerCtx)

	grace.Stop()
	c.mu.Lock()
	c.baseRetries += r.Retries()
	c.reader = nil
	c.readerCancel = nil
	c.mu.Unlock()

	return err
}

// noteRecord marks the pipeline healthy on every upstream record.
func (c *Controller) noteRecord() {
	if c.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		slog.Info("relay: running (first record received)")
		return
	}
	if c.state.CompareAndSwap(int32(StateRestarting), int32(StateRunning)) {
		slog.Info("relay: recovered")
	}
}

// noteTransient tracks transient reader failures inside the sliding
// window and triggers a reader rebuild when the burst threshold is
// crossed while Running.
func (c *Controller) noteTransient(err error) {
	now := c.now()
	cutoff := now.Add(-c.cfg.FailureWindow)

	c.mu.Lock()
	kept := c.failures[:0]
	for _, ts := range c.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.failures = append(kept, now)
	burst := len(c.failures) >= c.cfg.FailureBurst
	readerCancel := c.readerCancel
	c.mu.Unlock()

	if !burst {
		return
	}
	if c.state.CompareAndSwap(int32(StateRunning), int32(StateRestarting)) {
		slog.Warn("relay: failure burst — tearing down reader",
			"failures", c.cfg.FailureBurst,
			"window", c.cfg.FailureWindow,
			"err", err,
		)
		c.mu.Lock()
		c.failures = c.failures[:0]
		c.mu.Unlock()
		if readerCancel != nil {
			readerCancel()
		}
	}
}

// fail records a fatal pipeline error. New subscribers are rejected;
// existing sessions stay connected but will receive no further events.
func (c *Controller) fail(err error) {
	c.state.Store(int32(StateFailed))
	c.cfg.Hub.SetAccepting(false)
	slog.Error("relay: pipeline failed — operator intervention required", "err", err)
}
