package filter

import (
	"strings"
	"sync"
)

// HandleSet is a case-insensitive set of account handles.
type HandleSet struct {
	handles map[string]struct{}
	mu      sync.RWMutex
}

// NewHandleSet creates a set holding the given handles.
func NewHandleSet(handles ...string) *HandleSet {
	s := &HandleSet{handles: make(map[string]struct{}, len(handles))}
	for _, h := range handles {
		s.Add(h)
	}
	return s
}

// Contains checks if a handle is tracked.
func (s *HandleSet) Contains(handle string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.handles[normalize(handle)]
	return exists
}

// Add adds a handle to the set. Empty handles are ignored.
func (s *HandleSet) Add(handle string) {
	h := normalize(handle)
	if h == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h] = struct{}{}
}

// Size returns the number of tracked handles.
func (s *HandleSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

func normalize(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
