// Package baggage decides whether a baggage key may be written and how
// long its value may be.
//
// The tracer consults a RestrictionManager on every baggage write.
// Denied writes are dropped (observable only through metrics, never as
// errors); over-long values are truncated. The default manager permits
// every key; the remote manager polls a restriction service for
// per-key policies.
package baggage

// DefaultMaxValueLength caps baggage values when no per-key policy says
// otherwise.
const DefaultMaxValueLength = 2048

// Restriction is the policy for one baggage key.
type Restriction struct {
	KeyAllowed     bool
	MaxValueLength int
}

// RestrictionManager decides the restriction for a (service, key) pair.
// Implementations must be safe for concurrent use.
type RestrictionManager interface {
	GetRestriction(service, key string) Restriction
}

// DefaultRestrictionManager allows every key, bounding only value
// length.
type DefaultRestrictionManager struct {
	maxValueLength int
}

// NewDefaultRestrictionManager creates a permit-all manager. A
// maxValueLength of zero means DefaultMaxValueLength.
func NewDefaultRestrictionManager(maxValueLength int) *DefaultRestrictionManager {
	if maxValueLength <= 0 {
		maxValueLength = DefaultMaxValueLength
	}
	return &DefaultRestrictionManager{maxValueLength: maxValueLength}
}

// GetRestriction implements RestrictionManager.
func (m *DefaultRestrictionManager) GetRestriction(service, key string) Restriction {
	return Restriction{KeyAllowed: true, MaxValueLength: m.maxValueLength}
}
