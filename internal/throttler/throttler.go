// Package throttler bounds how often debug spans may be started.
//
// Debug spans bypass sampling entirely, so an abusive or misconfigured
// upstream could force every request to be reported. A Throttler gives
// the tracer a hook to cap that; the default implementation permits
// everything.
package throttler

// Throttler decides whether a debug span may be started for the given
// operation. Implementations must be safe for concurrent use.
type Throttler interface {
	IsAllowed(operation string) bool
	Close() error
}

// Default permits every debug span.
type Default struct{}

// IsAllowed always returns true.
func (Default) IsAllowed(operation string) bool { return true }

// Close is a no-op.
func (Default) Close() error { return nil }
