package orderbook

import (
	"sort"
	"sync"

	"github.com/tidwall/btree"

	"matchbook/infra/sequence"
)

// Config carries book behavior switches.
type Config struct {
	// StrictPricePriority orders eligibility results best-price-first
	// before arrival time. The default (false) reproduces the source
	// behavior: arrival time only, across all eligible price levels.
	StrictPricePriority bool
}

// Listener is notified synchronously from the submit path, while the write
// lock is held. Listeners mutate the book only through the supplied Txn.
type Listener interface {
	OnBookChange(tx *Txn)
}

// Book is the price-indexed store of resting orders for one instrument.
//
// The id index, the two side indices and the pending queue form a single
// consistency domain guarded by one readers-writer lock. Matching cascades
// re-entrantly from Submit: listeners run under the write lock and call
// back through the Txn view, which never re-acquires the lock, so the
// cascade is a plain recursion on the submitting goroutine.
type Book struct {
	mu  sync.RWMutex
	cfg Config

	buys  *btree.Map[int64, *priceLevel]
	sells *btree.Map[int64, *priceLevel]
	byID  map[string]*Order

	pending   []*Order
	listeners []Listener

	seq     *sequence.Sequencer
	lastSeq uint64
}

func New(cfg Config) *Book {
	return &Book{
		cfg:   cfg,
		buys:  btree.NewMap[int64, *priceLevel](32),
		sells: btree.NewMap[int64, *priceLevel](32),
		byID:  make(map[string]*Order),
		seq:   sequence.New(0),
	}
}

// Txn is the write-locked view of the book. It exposes the same operations
// as the public API without locking; every callback that runs inside the
// submit cascade goes through it.
type Txn struct {
	b *Book
}

func (tx *Txn) Submit(o *Order)    { tx.b.submit(o) }
func (tx *Txn) Remove(id string)   { tx.b.remove(id) }
func (tx *Txn) DrainNew() []*Order { return tx.b.drainNew() }

func (tx *Txn) EligibleFor(aggressor Side, limit int64) []*Order {
	return tx.b.eligibleFor(aggressor, limit)
}

func (tx *Txn) Reduce(o *Order, by int64) error { return tx.b.reduce(o, by) }
func (tx *Txn) LastSeq() uint64                 { return tx.b.lastSeq }
func (tx *Txn) BestBuy() (int64, bool)          { return tx.b.bestBuy() }
func (tx *Txn) BestSell() (int64, bool)         { return tx.b.bestSell() }
func (tx *Txn) Depth() (buys, sells int)        { return tx.b.buys.Len(), tx.b.sells.Len() }

// Submit admits an order. Resubmitting an identical (id, quantity) pair is
// a silent no-op; the same id with a different quantity replaces the
// resting order. Registered listeners fire synchronously before Submit
// returns, still under the write lock.
func (b *Book) Submit(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submit(o)
}

// Remove deletes a resting order. Removing an unknown id is a no-op.
func (b *Book) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(id)
}

// DrainNew atomically removes and returns the orders admitted since the
// previous drain, in admission order. Each admitted order is handed out
// exactly once.
func (b *Book) DrainNew() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainNew()
}

// Update runs fn under the write lock with a Txn view. It is the entry
// point for callers that need several mutations to be one atomic step.
func (b *Book) Update(fn func(*Txn)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&Txn{b})
}

// EligibleFor returns the resting orders the given aggressor side may
// match at its limit price: for a Sell query, buys priced at or above the
// limit; for a Buy query, sells priced at or below it. Results are ordered
// by arrival stamp across all eligible levels, or best-price-first when
// the book was configured with StrictPricePriority.
func (b *Book) EligibleFor(aggressor Side, limit int64) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eligibleFor(aggressor, limit)
}

// BuyOrders snapshots the buy side, descending price then arrival order.
func (b *Book) BuyOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sideSnapshot(b.buys)
}

// SellOrders snapshots the sell side, descending price then arrival order.
func (b *Book) SellOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sideSnapshot(b.sells)
}

// Get reports the resting order for an id, if any.
func (b *Book) Get(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byID[id]
	return o, ok
}

// Len counts resting orders across both sides.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

func (b *Book) BestBuy() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBuy()
}

func (b *Book) BestSell() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestSell()
}

func (b *Book) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Book) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.listeners {
		if cur == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// ---- lock-held core ----

func (b *Book) submit(o *Order) {
	if o == nil || o.qty <= 0 {
		return
	}

	existing, resting := b.byID[o.id]
	if resting && existing.qty == o.qty {
		return // benign repeat
	}
	if resting {
		// Same id, new quantity: the replacement supersedes the
		// resting order so the id index never holds two entries.
		b.remove(o.id)
	}

	if o.seq == 0 {
		o.seq = b.seq.Next()
	}
	b.lastSeq = o.seq

	tree := b.sideTree(o.side)
	lvl, ok := tree.Get(o.price)
	if !ok {
		lvl = &priceLevel{price: o.price}
		tree.Set(o.price, lvl)
	}
	lvl.enqueue(o)
	b.byID[o.id] = o
	b.pending = append(b.pending, o)

	b.notify()
}

func (b *Book) remove(id string) {
	o, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)

	tree := b.sideTree(o.side)
	if lvl, ok := tree.Get(o.price); ok {
		lvl.unlink(o)
		if lvl.empty() {
			tree.Delete(o.price)
		}
	}
}

func (b *Book) drainNew() []*Order {
	out := b.pending
	b.pending = nil
	return out
}

func (b *Book) reduce(o *Order, by int64) error {
	if err := o.reduce(by); err != nil {
		return err
	}
	// Keep the level aggregate in step when the order is resting.
	if cur, ok := b.byID[o.id]; ok && cur == o {
		if lvl, ok := b.sideTree(o.side).Get(o.price); ok {
			lvl.totalQty -= by
		}
	}
	return nil
}

func (b *Book) eligibleFor(aggressor Side, limit int64) []*Order {
	var out []*Order
	collect := func(_ int64, lvl *priceLevel) bool {
		lvl.each(func(o *Order) bool {
			out = append(out, o)
			return true
		})
		return true
	}

	if aggressor == Sell {
		b.buys.Ascend(limit, collect)
	} else {
		b.sells.Descend(limit, collect)
	}

	if b.cfg.StrictPricePriority {
		sort.Slice(out, func(i, j int) bool {
			if out[i].price != out[j].price {
				if aggressor == Sell {
					return out[i].price > out[j].price
				}
				return out[i].price < out[j].price
			}
			return out[i].seq < out[j].seq
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	}
	return out
}

func (b *Book) sideSnapshot(tree *btree.Map[int64, *priceLevel]) []*Order {
	out := make([]*Order, 0, len(b.byID))
	tree.Reverse(func(_ int64, lvl *priceLevel) bool {
		lvl.each(func(o *Order) bool {
			out = append(out, o)
			return true
		})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].price != out[j].price {
			return out[i].price > out[j].price
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (b *Book) bestBuy() (int64, bool) {
	price, _, ok := b.buys.Max()
	return price, ok
}

func (b *Book) bestSell() (int64, bool) {
	price, _, ok := b.sells.Min()
	return price, ok
}

func (b *Book) sideTree(s Side) *btree.Map[int64, *priceLevel] {
	if s == Buy {
		return b.buys
	}
	return b.sells
}

func (b *Book) notify() {
	if len(b.listeners) == 0 {
		return
	}
	// Copy: a listener may register or remove listeners re-entrantly.
	ls := make([]Listener, len(b.listeners))
	copy(ls, b.listeners)
	tx := &Txn{b}
	for _, l := range ls {
		l.OnBookChange(tx)
	}
}
