package particles

import (
	"fmt"
	"sync"

	"github.com/gogpu/particles/compute"

	// The software backend is always available as a fallback.
	_ "github.com/gogpu/particles/compute/software"
)

var (
	defaultMu        sync.Mutex
	defaultCtx       compute.Context
	defaultQueue     compute.Queue
	defaultSession   *Session
	defaultPrecision = Single
)

// DefaultContext returns the process-wide compute context, opening the best
// registered backend on first use.
func DefaultContext() (compute.Context, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultContextLocked()
}

// queueOwner is implemented by queues that know their context.
type queueOwner interface {
	Context() compute.Context
}

// defaultContextLocked returns the default context. When only the queue was
// overridden, the queue's own context becomes the default.
func defaultContextLocked() (compute.Context, error) {
	if defaultCtx != nil {
		return defaultCtx, nil
	}
	if owner, ok := defaultQueue.(queueOwner); ok {
		defaultCtx = owner.Context()
		propagateLogger(defaultCtx, Logger())
		return defaultCtx, nil
	}
	ctx, err := compute.Default()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	propagateLogger(ctx, Logger())
	Logger().Info("particles: default compute context created", "backend", ctx.Name())
	defaultCtx = ctx
	return ctx, nil
}

// SetDefaultContext replaces the process-wide context. The default queue
// and session are dropped so they are recreated on the new context. The
// previous context is not closed.
func SetDefaultContext(ctx compute.Context) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCtx = ctx
	defaultQueue = nil
	defaultSession = nil
	if ctx != nil {
		propagateLogger(ctx, Logger())
	}
}

// DefaultQueue returns the process-wide queue on the default context,
// creating both as needed.
func DefaultQueue() (compute.Queue, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultQueueLocked()
}

func defaultQueueLocked() (compute.Queue, error) {
	if defaultQueue != nil {
		return defaultQueue, nil
	}
	ctx, err := defaultContextLocked()
	if err != nil {
		return nil, err
	}
	q, err := ctx.NewQueue()
	if err != nil {
		return nil, fmt.Errorf("particles: default queue: %w", err)
	}
	defaultQueue = q
	return q, nil
}

// SetDefaultQueue replaces the process-wide queue. q must belong to the
// default context; if none exists yet and q reports its context, that
// context becomes the default. The default session is dropped.
func SetDefaultQueue(q compute.Queue) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultQueue = q
	defaultSession = nil
}

// DefaultPrecision returns the precision used by sessions that do not set
// one.
func DefaultPrecision() Precision {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultPrecision
}

// SetDefaultPrecision sets the precision used by sessions that do not set
// one. The default session is dropped.
func SetDefaultPrecision(p Precision) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPrecision = p
	defaultSession = nil
}

// DefaultSession returns a session on the default context and queue.
// Packages accept a nil *Session and substitute this one.
func DefaultSession() (*Session, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSession != nil {
		return defaultSession, nil
	}
	q, err := defaultQueueLocked()
	if err != nil {
		return nil, err
	}
	ctx, err := defaultContextLocked()
	if err != nil {
		return nil, err
	}
	s := &Session{
		ctx:       ctx,
		queue:     q,
		precision: defaultPrecision,
	}
	s.id = newSessionID()
	defaultSession = s
	return s, nil
}

// Resolve returns s, or the default session when s is nil.
func Resolve(s *Session) (*Session, error) {
	if s != nil {
		return s, nil
	}
	return DefaultSession()
}

// resetDefaults clears every process-wide handle. Used by tests.
func resetDefaults() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCtx = nil
	defaultQueue = nil
	defaultSession = nil
	defaultPrecision = Single
}
