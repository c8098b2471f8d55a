package dispatch

import "sync"

// dedupe remembers the most recent call ids in a fixed ring.
type dedupe struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newDedupe(size int) *dedupe {
	return &dedupe{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add reports false when id is already remembered.
func (s *dedupe) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}
