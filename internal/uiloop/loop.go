// Package uiloop provides the single UI-affinity scheduler.
//
// Every overlay state transition runs as a closure on one goroutine owned by
// a Loop. Callers on other goroutines marshal work onto it with Post
// (fire-and-continue) or Do (run and wait). Timed work such as animations is
// expressed with Schedule, whose callbacks are posted back onto the loop.
package uiloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted to a loop that is not running.
var ErrStopped = errors.New("ui loop stopped")

// DefaultFrameInterval is the tick rate used to drive scheduled animations.
const DefaultFrameInterval = 16 * time.Millisecond

// Config holds loop configuration.
type Config struct {
	// FrameInterval is the time between animation steps.
	FrameInterval time.Duration

	// Logger receives task panics and lifecycle messages.
	Logger *zap.Logger
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		FrameInterval: DefaultFrameInterval,
		Logger:        zap.NewNop(),
	}
}

// Loop serializes closures onto a single goroutine.
type Loop struct {
	frame  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	timers  sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	executed atomic.Int64
}

// New creates a loop. It does not run tasks until Start is called.
func New(cfg Config) *Loop {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		frame:  cfg.FrameInterval,
		logger: cfg.Logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.running.Store(true)
		go l.run()
	})
}

// Stop halts the loop, drops queued tasks and waits for the loop goroutine
// and every scheduled timer to exit.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.running.Store(false)
		l.pending = nil
		l.mu.Unlock()
		close(l.stopCh)
	})
	l.startOnce.Do(func() { close(l.doneCh) })
	<-l.doneCh
	l.timers.Wait()
}

// Running reports whether the loop accepts work.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Executed returns the number of tasks run so far.
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}

// Post enqueues fn to run on the loop. It never blocks.
// It returns false when the loop is stopped and fn was dropped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrStopped
	}
}

func (l *Loop) run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.pending
			l.pending = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				select {
				case <-l.stopCh:
					return
				default:
				}
				l.exec(fn)
			}
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ui task panicked", zap.Any("panic", r))
		}
	}()
	fn()
	l.executed.Add(1)
}
