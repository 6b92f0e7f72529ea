// Package bookfeed is the asynchronous change-notification channel for
// external consumers: a book listener pushes a compact depth event into a
// bounded channel on every admitted change, and a background goroutine
// forwards events to Kafka. Delivery is best effort (events are dropped
// when the channel is full) and matching never depends on it.
package bookfeed

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
)

// Event is one book-change notification.
type Event struct {
	Seq        uint64 `json:"seq"`
	BestBuy    int64  `json:"best_buy,omitempty"`
	BestSell   int64  `json:"best_sell,omitempty"`
	BuyLevels  int    `json:"buy_levels"`
	SellLevels int    `json:"sell_levels"`
}

// Publisher sends one encoded event. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Feed struct {
	ch  chan Event
	pub Publisher
	log *zap.Logger
}

func New(pub Publisher, buffer int, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Feed{
		ch:  make(chan Event, buffer),
		pub: pub,
		log: log,
	}
}

// OnBookChange runs inside the book's write lock; it only snapshots a few
// aggregates and never blocks.
func (f *Feed) OnBookChange(tx *orderbook.Txn) {
	ev := Event{Seq: tx.LastSeq()}
	if p, ok := tx.BestBuy(); ok {
		ev.BestBuy = p
	}
	if p, ok := tx.BestSell(); ok {
		ev.BestSell = p
	}
	ev.BuyLevels, ev.SellLevels = tx.Depth()

	select {
	case f.ch <- ev:
	default:
		// Feed is best effort; a full channel drops the event.
	}
}

// Run forwards queued events until the context is canceled.
func (f *Feed) Run(ctx context.Context) {
	f.log.Info("book feed started")
	for {
		select {
		case <-ctx.Done():
			f.log.Info("book feed stopped")
			return
		case ev := <-f.ch:
			f.forward(ctx, ev)
		}
	}
}

func (f *Feed) forward(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("encode book event", zap.Error(err))
		return
	}
	key := []byte(strconv.FormatUint(ev.Seq, 10))
	if err := f.pub.Publish(ctx, key, payload); err != nil {
		f.log.Warn("publish book event failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
	}
}

var _ orderbook.Listener = (*Feed)(nil)
