package artifact

import "sync"

// Releaser is anything a job must clean up exactly once.
type Releaser interface {
	Release()
}

// Set collects the releasers of one job and releases them together.
// Use it as:
//
//	set := artifact.NewSet()
//	defer set.Release()
type Set struct {
	mu       sync.Mutex
	items    []Releaser
	released bool
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// Add registers r. Adding to an already released set releases r immediately,
// so nothing allocated late in a job can escape cleanup.
func (s *Set) Add(r Releaser) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		r.Release()
		return
	}
	s.items = append(s.items, r)
	s.mu.Unlock()
}

// Release releases every registered item in reverse order of registration.
// Subsequent calls do nothing.
func (s *Set) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Release()
	}
}

// Len returns the number of items awaiting release.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
