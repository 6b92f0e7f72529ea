package orderbook

// priceLevel is the FIFO queue of resting orders at a single price.
type priceLevel struct {
	price int64

	head *Order
	tail *Order

	totalQty int64
	count    int
}

func (p *priceLevel) enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.totalQty += o.qty
	p.count++
}

// unlink removes an order from anywhere in the queue. Reports whether the
// order was present.
func (p *priceLevel) unlink(o *Order) bool {
	found := false
	for cur := p.head; cur != nil; cur = cur.next {
		if cur == o {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	p.totalQty -= o.qty
	p.count--
	return true
}

func (p *priceLevel) empty() bool {
	return p.head == nil
}

// each visits orders in queue order; returning false stops the walk.
func (p *priceLevel) each(fn func(*Order) bool) {
	for o := p.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}
