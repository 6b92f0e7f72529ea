// Package backup persists the resting book across runs as line records,
// one resting order per line: id,side,price,quantity. Restoring replays
// the records as ordinary submissions, so replayed orders regain their
// side, price and quantity and take fresh arrival stamps in file order.
package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"matchbook/domain/orderbook"
)

// SubmitFunc replays one restored record into the engine.
type SubmitFunc func(id string, side orderbook.Side, price, qty int64) error

// Write emits backup records for the given snapshots, buys first.
func Write(w io.Writer, buys, sells []*orderbook.Order) error {
	bw := bufio.NewWriter(w)
	for _, o := range append(buys, sells...) {
		if _, err := fmt.Fprintf(bw, "%s,%s,%d,%d\n", o.ID(), o.Side().Letter(), o.Price(), o.Qty()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save writes the backup atomically: temp file in the target directory,
// fsync, then rename over the destination.
func Save(path string, buys, sells []*orderbook.Order) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create backup temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, buys, sells); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install backup: %w", err)
	}
	return nil
}

// Read replays records from r through submit in file order. Malformed
// lines are skipped and counted rather than aborting the stream. Returns
// the number of restored and skipped records.
func Read(r io.Reader, submit SubmitFunc) (restored, skipped int, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, side, price, qty, perr := parseRecord(line)
		if perr != nil {
			skipped++
			continue
		}
		if serr := submit(id, side, price, qty); serr != nil {
			skipped++
			continue
		}
		restored++
	}
	if err := sc.Err(); err != nil {
		return restored, skipped, fmt.Errorf("read backup: %w", err)
	}
	return restored, skipped, nil
}

// Load restores from a backup file. A missing file is not an error; there
// is simply nothing to replay.
func Load(path string, submit SubmitFunc) (restored, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()
	return Read(f, submit)
}

func parseRecord(line string) (id string, side orderbook.Side, price, qty int64, err error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return "", 0, 0, 0, fmt.Errorf("record has %d fields, want 4", len(fields))
	}
	id = strings.TrimSpace(fields[0])
	side, err = orderbook.SideFromLetter(strings.TrimSpace(fields[1]))
	if err != nil {
		return "", 0, 0, 0, err
	}
	price, err = strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("price: %w", err)
	}
	qty, err = strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("quantity: %w", err)
	}
	return id, side, price, qty, nil
}
