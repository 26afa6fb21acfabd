package particles

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gogpu/particles/compute"
)

// Session bundles the compute context, the queue work is issued on and the
// device precision. Device arrays, synchronizers and kernel caches are
// created against a session and must not outlive it.
//
// A Session is safe to share between goroutines, but work issued through
// its queue is only ordered per queue.
type Session struct {
	id        uuid.UUID
	ctx       compute.Context
	queue     compute.Queue
	precision Precision
	ownsCtx   bool
}

// NewSession creates a session on ctx. Unless WithQueue is given, a new
// queue is obtained from ctx.
func NewSession(ctx compute.Context, opts ...SessionOption) (*Session, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil compute context", ErrNoBackend)
	}
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.precision != Single && o.precision != Double {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, o.precision)
	}

	q := o.queue
	if q == nil {
		var err error
		if q, err = ctx.NewQueue(); err != nil {
			return nil, fmt.Errorf("particles: new queue: %w", err)
		}
	}
	s := &Session{
		id:        newSessionID(),
		ctx:       ctx,
		queue:     q,
		precision: o.precision,
		ownsCtx:   o.ownsCtx,
	}
	Logger().Debug("particles: session created",
		"session", s.id, "backend", ctx.Name(), "precision", s.precision)
	return s, nil
}

// OpenSession opens a new context from the named backend and creates a
// session that owns it. "" and "auto" pick the best registered backend.
func OpenSession(backend string, opts ...SessionOption) (*Session, error) {
	var (
		ctx compute.Context
		err error
	)
	switch strings.ToLower(backend) {
	case "", "auto":
		ctx, err = compute.Default()
	default:
		ctx, err = compute.Open(backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	propagateLogger(ctx, Logger())
	Logger().Info("particles: compute backend opened", "backend", ctx.Name())

	s, err := NewSession(ctx, append(opts, WithOwnedContext())...)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return s, nil
}

func newSessionID() uuid.UUID { return uuid.New() }

// ID returns the session identifier used in logs and buffer labels.
func (s *Session) ID() uuid.UUID { return s.id }

// Context returns the compute context.
func (s *Session) Context() compute.Context { return s.ctx }

// Queue returns the queue the session issues work on.
func (s *Session) Queue() compute.Queue { return s.queue }

// Precision returns the device float precision.
func (s *Session) Precision() Precision { return s.precision }

// Backend returns the name of the compute backend.
func (s *Session) Backend() string { return s.ctx.Name() }

// Label returns a buffer label for name tagged with the session.
func (s *Session) Label(name string) string {
	return name + "@" + s.id.String()[:8]
}

// Close closes the context if the session opened it. Sessions built with
// NewSession leave the context to the caller.
func (s *Session) Close() error {
	if !s.ownsCtx {
		return nil
	}
	Logger().Debug("particles: session closed", "session", s.id)
	return s.ctx.Close()
}
