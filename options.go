package particles

import "github.com/gogpu/particles/compute"

// SessionOption configures a Session during creation.
//
// Example:
//
//	s, err := particles.NewSession(ctx, particles.WithPrecision(particles.Double))
type SessionOption func(*sessionOptions)

// sessionOptions holds optional configuration for Session creation.
type sessionOptions struct {
	queue     compute.Queue
	precision Precision
	ownsCtx   bool
}

// defaultSessionOptions returns the default session options. The precision
// follows SetDefaultPrecision.
func defaultSessionOptions() sessionOptions {
	return sessionOptions{precision: DefaultPrecision()}
}

// WithQueue makes the session issue work on q instead of a fresh queue
// from the context. q must belong to the session's context.
func WithQueue(q compute.Queue) SessionOption {
	return func(o *sessionOptions) {
		o.queue = q
	}
}

// WithPrecision sets the device float precision.
func WithPrecision(p Precision) SessionOption {
	return func(o *sessionOptions) {
		o.precision = p
	}
}

// WithOwnedContext makes Session.Close close the context. OpenSession sets it;
// use it with NewSession when handing the context over to the session.
func WithOwnedContext() SessionOption {
	return func(o *sessionOptions) {
		o.ownsCtx = true
	}
}
