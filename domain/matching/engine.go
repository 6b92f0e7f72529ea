package matching

import (
	"fmt"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/domain/tradelog"
)

// Engine matches incoming orders against the book under the price-time
// rule and appends resulting trades to the ledger.
//
// The engine subscribes to the book: every order the book admits is
// drained and matched exactly once, synchronously on the submitting
// goroutine, inside the book's write lock. Residual quantity is placed
// back through the same Txn, so the cascade terminates on the book's
// idempotent-resubmission rule.
//
// Matching walks eligible resting orders in arrival order across all
// eligible price levels. That matches at the earliest-arrived eligible
// order even when a better-priced one arrived later; construct the book
// with StrictPricePriority for canonical best-price-first matching.
type Engine struct {
	book   *orderbook.Book
	ledger *tradelog.Ledger
	log    *zap.Logger
}

// New wires an engine to a book and ledger and registers it as the book's
// matching listener.
func New(book *orderbook.Book, ledger *tradelog.Ledger, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{book: book, ledger: ledger, log: log}
	book.AddListener(e)
	return e
}

// OnBookChange drains newly admitted orders and matches each in turn. A
// failed match is logged and skipped; it never blocks later, independent
// orders.
func (e *Engine) OnBookChange(tx *orderbook.Txn) {
	for _, o := range tx.DrainNew() {
		trades, err := e.match(tx, o)
		if err != nil {
			e.log.Error("match failed",
				zap.String("order_id", o.ID()),
				zap.Error(err))
			continue
		}
		e.ledger.AppendAll(trades)
		if len(trades) > 0 {
			e.log.Debug("matched",
				zap.String("order_id", o.ID()),
				zap.Int("trades", len(trades)))
		}
	}
}

// Process matches a single order that has not been submitted separately,
// and returns the trades it produced. Any unfilled remainder is left
// resting in the book.
func (e *Engine) Process(o *orderbook.Order) ([]tradelog.Trade, error) {
	var (
		trades []tradelog.Trade
		err    error
	)
	e.book.Update(func(tx *orderbook.Txn) {
		trades, err = e.match(tx, o)
		if err == nil {
			e.ledger.AppendAll(trades)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("process order %s: %w", o.ID(), err)
	}
	return trades, nil
}

// fill is one planned step of a match.
type fill struct {
	resting *orderbook.Order
	qty     int64
}

// match runs one incoming order against the book as a single logical step.
// The fill plan is computed and validated before anything is mutated, so a
// quantity-contract violation aborts with the book untouched and no trades
// produced.
func (e *Engine) match(tx *orderbook.Txn, o *orderbook.Order) ([]tradelog.Trade, error) {
	eligible := tx.EligibleFor(o.Side(), o.Price())

	remaining := o.Qty()
	plan := make([]fill, 0, len(eligible))
	for _, r := range eligible {
		if remaining == 0 {
			break
		}
		qty := min(r.Qty(), remaining)
		if qty <= 0 {
			continue
		}
		plan = append(plan, fill{resting: r, qty: qty})
		remaining -= qty
	}

	for _, f := range plan {
		if f.qty <= 0 || f.qty > f.resting.Qty() {
			return nil, fmt.Errorf("fill %d against resting %s holding %d: %w",
				f.qty, f.resting.ID(), f.resting.Qty(), orderbook.ErrInvalidQuantity)
		}
	}

	trades := make([]tradelog.Trade, 0, len(plan))
	for _, f := range plan {
		if err := tx.Reduce(f.resting, f.qty); err != nil {
			return nil, fmt.Errorf("reduce resting %s: %w", f.resting.ID(), err)
		}
		if f.resting.Qty() == 0 {
			tx.Remove(f.resting.ID())
		}
		trades = append(trades, tradelog.Trade{
			AggressorID: o.ID(),
			RestingID:   f.resting.ID(),
			Price:       f.resting.Price(),
			Qty:         f.qty,
		})
	}

	filled := o.Qty() - remaining
	if remaining > 0 {
		if filled > 0 {
			if err := tx.Reduce(o, filled); err != nil {
				return nil, fmt.Errorf("reduce incoming %s: %w", o.ID(), err)
			}
		}
		// Resting the remainder; a no-op when the order is already in
		// the book with this quantity, which is what stops the cascade.
		tx.Submit(o)
	} else {
		// Fully filled: make sure no prior admission left it resting.
		tx.Remove(o.ID())
	}

	return trades, nil
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
