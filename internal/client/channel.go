// Package client maintains one logical event subscription across transient
// network failures: connect, authenticate, receive, detect failure, reconnect
// with bounded exponential backoff, tear down.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/beacon/internal/event"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Defaults for the reconnect policy.
const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 30 * time.Second
)

// CredentialProvider returns a fresh bearer credential. It is called on
// every connection attempt; credentials are never cached across attempts.
type CredentialProvider func(ctx context.Context) (string, error)

// Conn is one open transport connection.
type Conn interface {
	// Next blocks until the next raw frame arrives. Any error means the
	// connection is gone.
	Next() ([]byte, error)
	Close() error
}

// Transport opens the persistent channel. An invalid or absent credential
// makes Dial fail like any other connection failure; there is no separate
// auth fast path.
type Transport interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// Timer is a cancellable pending retry.
type Timer interface {
	Stop() bool
}

// Scheduler schedules the reconnect delay. Injectable so backoff timing is
// testable without real elapsed time.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Options configures a Channel.
type Options struct {
	Credentials CredentialProvider
	Transport   Transport
	Scheduler   Scheduler // nil → real timers

	MaxAttempts int           // 0 → DefaultMaxAttempts
	BackoffBase time.Duration // 0 → DefaultBackoffBase
	BackoffCap  time.Duration // 0 → DefaultBackoffCap

	OnConnect    func()
	OnEvent      func(event.Event)
	OnError      func(error)
	OnDisconnect func()
}

// Channel is one logical subscription. All callbacks are suppressed after
// Unsubscribe, even when an in-flight dial or read resolves later.
type Channel struct {
	opts Options

	mu       sync.Mutex
	state    State
	attempts int
	alive    bool
	conn     Conn
	timer    Timer
	cancel   context.CancelFunc
}

// Subscribe creates the channel and starts the first connection attempt.
func Subscribe(ctx context.Context, opts Options) *Channel {
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		opts:   opts,
		state:  StateIdle,
		alive:  true,
		cancel: cancel,
	}

	go c.connect(ctx)
	return c
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the failed-attempt counter. It resets to zero on every
// successful open.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Unsubscribe tears the subscription down: the liveness flag drops, any
// pending retry timer is cancelled and any open transport is closed. No
// callback fires afterwards.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	c.alive = false
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

// connect performs one attempt: fresh credential, dial, then the read loop.
func (c *Channel) connect(ctx context.Context) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.timer = nil
	c.mu.Unlock()

	cred, err := c.opts.Credentials(ctx)
	if err != nil {
		slog.Warn("credential fetch failed", "error", err)
		c.emitError(err)
		c.scheduleRetry(ctx)
		return
	}

	conn, err := c.opts.Transport.Dial(ctx, cred)
	if err != nil {
		slog.Warn("connection attempt failed", "error", err)
		c.emitError(err)
		c.scheduleRetry(ctx)
		return
	}

	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	onConnect := c.opts.OnConnect
	c.mu.Unlock()

	slog.Info("event channel open")
	if onConnect != nil {
		onConnect()
	}

	c.readLoop(ctx, conn)
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		frame, err := conn.Next()
		if err != nil {
			c.mu.Lock()
			alive := c.alive
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			_ = conn.Close()
			if !alive {
				return
			}
			slog.Warn("event channel closed", "error", err)
			c.scheduleRetry(ctx)
			return
		}

		e, err := event.Decode(frame)
		if err != nil {
			// Malformed frames are dropped; the connection stays open.
			slog.Warn("dropping malformed frame", "error", err)
			c.emitError(err)
			continue
		}

		c.mu.Lock()
		alive := c.alive
		onEvent := c.opts.OnEvent
		c.mu.Unlock()
		if alive && onEvent != nil {
			onEvent(e)
		}
	}
}

// scheduleRetry transitions to Reconnecting and arms the backoff timer, or
// gives up permanently once the attempt budget is spent.
func (c *Channel) scheduleRetry(ctx context.Context) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.opts.MaxAttempts {
		c.state = StateClosed
		onDisconnect := c.opts.OnDisconnect
		c.mu.Unlock()

		slog.Warn("reconnect attempts exhausted, going offline")
		if onDisconnect != nil {
			onDisconnect()
		}
		return
	}

	c.attempts++
	delay := backoffDelay(c.attempts, c.opts.BackoffBase, c.opts.BackoffCap)
	c.state = StateReconnecting
	c.timer = c.opts.Scheduler.AfterFunc(delay, func() {
		c.mu.Lock()
		alive := c.alive
		c.mu.Unlock()
		if alive {
			c.connect(ctx)
		}
	})
	c.mu.Unlock()

	slog.Info("reconnect scheduled", "delay", delay, "attempt", c.attempts)
}

func (c *Channel) emitError(err error) {
	c.mu.Lock()
	alive := c.alive
	onError := c.opts.OnError
	c.mu.Unlock()
	if alive && onError != nil {
		onError(err)
	}
}

// backoffDelay computes min(base << attempt, cap).
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt > 30 {
		return cap
	}
	d := base << uint(attempt)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}
