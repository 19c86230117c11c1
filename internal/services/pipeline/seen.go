package pipeline

import "sync"

// seenSet remembers ids and forgets all of them once it grows past limit
type seenSet struct {
	mu    sync.Mutex
	ids   map[int64]struct{}
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{ids: make(map[int64]struct{}), limit: limit}
}

// CheckAndAdd reports whether id was already present, adding it otherwise
func (s *seenSet) CheckAndAdd(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return true
	}
	s.ids[id] = struct{}{}
	if len(s.ids) > s.limit {
		s.ids = make(map[int64]struct{})
	}
	return false
}
