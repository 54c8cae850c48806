package routing

import "sync"

// Pattern counts consultations from one specialist to another.
type Pattern struct {
	Attempts  int
	Successes int
}

// Rate is the historical success ratio, or 0 with no attempts.
func (p Pattern) Rate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

type pair struct {
	requester string
	target    string
}

// History is the collaboration-pattern table keyed by (requester, target).
// Safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	patterns map[pair]Pattern
}

func NewHistory() *History {
	return &History{patterns: make(map[pair]Pattern)}
}

// Record counts one attempt from requester to target.
func (h *History) Record(requester, target string, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := pair{requester, target}
	p := h.patterns[key]
	p.Attempts++
	if success {
		p.Successes++
	}
	h.patterns[key] = p
}

// Pattern returns the counts for a pair.
func (h *History) Pattern(requester, target string) Pattern {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.patterns[pair{requester, target}]
}

// Len returns the number of tracked pairs.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.patterns)
}
