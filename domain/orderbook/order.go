package orderbook

import (
	"errors"
	"fmt"
)

// Side of the book an order rests on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Letter is the single-letter wire form used by order records.
func (s Side) Letter() string {
	if s == Buy {
		return "B"
	}
	return "S"
}

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// SideFromLetter parses the "B"/"S" record field.
func SideFromLetter(letter string) (Side, error) {
	switch letter {
	case "B", "b":
		return Buy, nil
	case "S", "s":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", letter)
}

// ErrInvalidQuantity marks a quantity adjustment that is non-positive or
// exceeds the remaining quantity. It is a contract violation, not a
// recoverable condition.
var ErrInvalidQuantity = errors.New("invalid quantity adjustment")

// Order is a resting or incoming limit order. Identity, side and price are
// fixed for the life of the order; the remaining quantity is mutated only
// through the book so no caller can alias into the shared object graph.
type Order struct {
	id    string
	side  Side
	price int64
	qty   int64
	seq   uint64

	next *Order
	prev *Order
}

// NewOrder builds an order with the caller-assigned id. The arrival stamp
// is assigned by the book on first admission.
func NewOrder(id string, side Side, price, qty int64) (*Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("order %s quantity %d: %w", id, qty, ErrInvalidQuantity)
	}
	return &Order{id: id, side: side, price: price, qty: qty}, nil
}

func (o *Order) ID() string   { return o.id }
func (o *Order) Side() Side   { return o.side }
func (o *Order) Price() int64 { return o.price }
func (o *Order) Qty() int64   { return o.qty }
func (o *Order) Seq() uint64  { return o.seq }

// reduce subtracts a fill from the remaining quantity. Callers outside the
// package go through Txn.Reduce.
func (o *Order) reduce(by int64) error {
	if by <= 0 {
		return fmt.Errorf("reduce order %s by %d: %w", o.id, by, ErrInvalidQuantity)
	}
	if by > o.qty {
		return fmt.Errorf("reduce order %s by %d of %d: %w", o.id, by, o.qty, ErrInvalidQuantity)
	}
	o.qty -= by
	return nil
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %d @ %d seq:%d", o.side, o.qty, o.price, o.seq)
}
