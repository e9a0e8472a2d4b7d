package engine

import "sync"

// AnswerStore is a sparse, index-addressed record of selected options for the
// active session. Writes for a given index are last-write-wins.
type AnswerStore struct {
	mu      sync.Mutex
	count   int
	answers map[int]string
}

// NewAnswerStore creates a store bounded by the exam's question count.
func NewAnswerStore(questionCount int) *AnswerStore {
	return &AnswerStore{
		count:   questionCount,
		answers: make(map[int]string),
	}
}

// Set records the selected option for a question position.
func (s *AnswerStore) Set(index int, option string) error {
	if index < 0 || index >= s.count {
		return ErrIndexOutOfRange
	}
	s.mu.Lock()
	s.answers[index] = option
	s.mu.Unlock()
	return nil
}

// Get returns the recorded option for a position, if any.
func (s *AnswerStore) Get(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[index]
	return v, ok
}

// Export returns the full answer list, index-aligned with the question set.
// Unanswered positions are nil.
func (s *AnswerStore) Export() []*string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*string, s.count)
	for i, v := range s.answers {
		opt := v
		out[i] = &opt
	}
	return out
}

// Restore loads a previously persisted answer list, e.g. when resuming a
// session. Entries beyond the question count are dropped.
func (s *AnswerStore) Restore(answers []*string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range answers {
		if a == nil || i >= s.count {
			continue
		}
		s.answers[i] = *a
	}
}
