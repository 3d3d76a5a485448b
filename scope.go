package veltrace

import "sync"

// ScopeManager is a stack of currently active spans. The stack is meant
// to be confined to one logical execution context: callers that fan out
// across goroutines should propagate spans through context.Context (see
// ContextWithSpan) rather than share one manager's stack.
type ScopeManager struct {
	mu  sync.Mutex
	top *scopeNode
}

type scopeNode struct {
	span *Span
	prev *scopeNode
	next *scopeNode
}

// Scope is the release handle for one activation. Close pops exactly
// the span this scope pushed, on every exit path, even when nested
// scopes are closed out of order.
type Scope struct {
	manager *ScopeManager
	node    *scopeNode
	once    sync.Once
}

// NewScopeManager creates an empty active-span stack.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{}
}

// Activate pushes a span and returns its scope.
func (m *ScopeManager) Activate(span *Span) *Scope {
	node := &scopeNode{span: span}
	m.mu.Lock()
	node.prev = m.top
	if m.top != nil {
		m.top.next = node
	}
	m.top = node
	m.mu.Unlock()
	return &Scope{manager: m, node: node}
}

// Active returns the top-of-stack span, nil when the stack is empty.
func (m *ScopeManager) Active() *Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.top == nil {
		return nil
	}
	return m.top.span
}

// Span returns the span this scope activated.
func (s *Scope) Span() *Span {
	return s.node.span
}

// Close removes this scope's span from the stack. Subsequent calls are
// no-ops.
func (s *Scope) Close() {
	s.once.Do(func() {
		m := s.manager
		m.mu.Lock()
		node := s.node
		if node.prev != nil {
			node.prev.next = node.next
		}
		if node.next != nil {
			node.next.prev = node.prev
		}
		if m.top == node {
			m.top = node.prev
		}
		node.prev, node.next = nil, nil
		m.mu.Unlock()
	})
}
