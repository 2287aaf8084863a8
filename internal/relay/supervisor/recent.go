package supervisor

// recentIDs is a bounded set of recently dispatched item ids. The oldest id
// is evicted once the window is full.
type recentIDs struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(size int) *recentIDs {
	if size <= 0 {
		size = 1024
	}
	return &recentIDs{
		ids:  make(map[string]struct{}, size),
		ring: make([]string, size),
	}
}

// Add records id and returns false if it was already in the window.
func (r *recentIDs) Add(id string) bool {
	if _, ok := r.ids[id]; ok {
		return false
	}

	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)

	return true
}

func (r *recentIDs) Reset() {
	clear(r.ids)
	clear(r.ring)
	r.next = 0
}
