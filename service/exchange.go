package service

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/domain/tradelog"
	"matchbook/infra/backup"
)

/*
Exchange is the single orchestration point of the system: it wires the
book, the matching engine and the trade ledger, parses external order
records, renders trades and book snapshots for display, and handles the
backup of resting orders across runs.

All coordination between the domain and the I/O adapters happens here;
the domain packages never see a file or a record format.
*/
type Exchange struct {
	log    *zap.Logger
	book   *orderbook.Book
	engine *matching.Engine
	ledger *tradelog.Ledger
}

func New(book *orderbook.Book, engine *matching.Engine, ledger *tradelog.Ledger, log *zap.Logger) *Exchange {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchange{
		log:    log,
		book:   book,
		engine: engine,
		ledger: ledger,
	}
}

// Submit parses the external side letter and submits one order. Matching
// runs synchronously inside the submission.
func (e *Exchange) Submit(id, side string, price, qty int64) error {
	s, err := orderbook.SideFromLetter(side)
	if err != nil {
		return fmt.Errorf("submit %s: %w", id, err)
	}
	o, err := orderbook.NewOrder(id, s, price, qty)
	if err != nil {
		return fmt.Errorf("submit %s: %w", id, err)
	}
	e.book.Submit(o)
	return nil
}

// Process matches one order directly through the engine and returns the
// trades it produced; any unfilled remainder rests in the book. Orders
// going through Submit must not also be passed here.
func (e *Exchange) Process(id, side string, price, qty int64) ([]tradelog.Trade, error) {
	s, err := orderbook.SideFromLetter(side)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", id, err)
	}
	o, err := orderbook.NewOrder(id, s, price, qty)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", id, err)
	}
	return e.engine.Process(o)
}

// ProcessRecords streams line-oriented order records through the engine:
// one comma-separated record per line, fields id, side, price, quantity.
// A malformed record is reported and skipped; it never aborts the stream.
func (e *Exchange) ProcessRecords(r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := e.submitRecord(line); err != nil {
			e.log.Warn("skipping malformed record",
				zap.Int("line", lineNo),
				zap.String("record", line),
				zap.Error(err))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read orders: %w", err)
	}
	return nil
}

func (e *Exchange) submitRecord(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return fmt.Errorf("record has %d fields, want 4", len(fields))
	}
	id := strings.TrimSpace(fields[0])
	side := strings.TrimSpace(fields[1])
	price, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	return e.Submit(id, side, price, qty)
}

// TradeLines renders the ledger in insertion order, one line per trade:
// "trade <aggressor>,<resting>,<price>,<quantity>".
func (e *Exchange) TradeLines() []string {
	trades := e.ledger.All()
	out := make([]string, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.String())
	}
	return out
}

const blankColumn = "                "

// BookLines renders the resting book as paired columns, buys on the left
// (quantity then price) and sells on the right (price then quantity),
// each side in descending price then arrival order.
func (e *Exchange) BookLines() []string {
	buys := e.book.BuyOrders()
	sells := e.book.SellOrders()

	n := len(buys)
	if len(sells) > n {
		n = len(sells)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		left, right := blankColumn, blankColumn
		if i < len(buys) {
			left = fmt.Sprintf("%9d %6d", buys[i].Qty(), buys[i].Price())
		}
		if i < len(sells) {
			right = fmt.Sprintf("%6d %9d", sells[i].Price(), sells[i].Qty())
		}
		out = append(out, left+"|"+right)
	}
	return out
}

// Output is the full run report: trade lines followed by book lines.
func (e *Exchange) Output() []string {
	return append(e.TradeLines(), e.BookLines()...)
}

// WriteBackup persists the resting book to path, one record per order.
func (e *Exchange) WriteBackup(path string) error {
	if err := backup.Save(path, e.book.BuyOrders(), e.book.SellOrders()); err != nil {
		return err
	}
	e.log.Info("book backup written",
		zap.String("path", path),
		zap.Int("orders", e.book.Len()))
	return nil
}

// RestoreBackup replays a previous run's backup as ordinary submissions,
// in file order, before new input is processed. A missing backup file is
// not an error.
func (e *Exchange) RestoreBackup(path string) error {
	restored, skipped, err := backup.Load(path, func(id string, side orderbook.Side, price, qty int64) error {
		o, err := orderbook.NewOrder(id, side, price, qty)
		if err != nil {
			return err
		}
		e.book.Submit(o)
		return nil
	})
	if err != nil {
		return err
	}
	if restored > 0 || skipped > 0 {
		e.log.Info("book backup restored",
			zap.String("path", path),
			zap.Int("restored", restored),
			zap.Int("skipped", skipped))
	}
	return nil
}
