package session

import "sync"

// AnswerStore records single-choice selections for one attempt. A later
// selection for the same question overwrites the prior one; an absent key
// means unanswered. One store is created per started attempt and discarded
// with it.
type AnswerStore struct {
	mu       sync.Mutex
	selected map[string]string // question ID → selected option ID
}

// NewAnswerStore creates an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{selected: make(map[string]string)}
}

// Select records optionID as the current choice for questionID. The store
// does not validate that either ID belongs to the exam; that is the
// controller's concern.
func (s *AnswerStore) Select(questionID, optionID string) {
	s.mu.Lock()
	s.selected[questionID] = optionID
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all selections. Later mutations
// are not reflected in the returned map.
func (s *AnswerStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.selected))
	for q, o := range s.selected {
		out[q] = o
	}
	return out
}

// Count returns the number of distinct answered questions.
func (s *AnswerStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected)
}
