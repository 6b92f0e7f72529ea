package sequence

import "sync/atomic"

// Sequencer issues strictly monotonic arrival stamps. Stamps carry no
// wall-clock meaning; they only order admissions, which keeps a restored
// book deterministic (replayed orders are re-stamped in replay order).
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer that will issue stamps above start.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next stamp.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued stamp.
func (s *Sequencer) Last() uint64 {
	return s.last.Load()
}

// Reset moves the sequencer to v. Only meaningful between runs, after a
// replay has established the highest stamp in use.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
