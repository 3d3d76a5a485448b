package veltrace

// ReferenceType describes how a span relates to a referenced context.
type ReferenceType int

const (
	// ChildOf means the referenced context is a parent that depends on
	// this span's outcome.
	ChildOf ReferenceType = iota
	// FollowsFrom means the referenced context caused this span but
	// does not wait for it.
	FollowsFrom
)

// String returns the reference type name.
func (r ReferenceType) String() string {
	switch r {
	case ChildOf:
		return "child_of"
	case FollowsFrom:
		return "follows_from"
	default:
		return "unknown"
	}
}

// Reference links a new span to an existing span context.
type Reference struct {
	Type    ReferenceType
	Context SpanContext
}
