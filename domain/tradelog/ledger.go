package tradelog

import "sync"

// Sink receives every appended trade together with its ledger sequence
// (1-based insertion index). Sinks run synchronously under the ledger lock
// and must be fast; durable or remote delivery belongs behind an outbox.
type Sink func(seq uint64, t Trade)

// Ledger is the append-only record of completed trades. Insertion order is
// preserved; there is no removal.
type Ledger struct {
	mu     sync.RWMutex
	trades []Trade
	sinks  []Sink
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(t Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(t)
}

// AppendAll appends a batch, preserving its order.
func (l *Ledger) AppendAll(trades []Trade) {
	if len(trades) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range trades {
		l.append(t)
	}
}

// All returns a snapshot copy; mutating it cannot touch the ledger.
func (l *Ledger) All() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Subscribe registers a sink for subsequently appended trades.
func (l *Ledger) Subscribe(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Ledger) append(t Trade) {
	l.trades = append(l.trades, t)
	seq := uint64(len(l.trades))
	for _, s := range l.sinks {
		s(seq, t)
	}
}
