// Package outbox is a durable store of completed trades awaiting delivery
// to external consumers. Each trade is keyed by its ledger sequence and
// carries a delivery state, so a restart resumes publication where it
// stopped. Matching never depends on the outbox; it exists only so change
// notification survives the process.
package outbox

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"matchbook/domain/tradelog"
)

// State of one outbox record.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record is one trade with its delivery bookkeeping.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Trade       tradelog.Trade
}

// Outbox stores records in pebble with its own WAL enabled, so a Put that
// returned is durable.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error { return o.db.Close() }

// Put stores a trade in StateNew under its ledger sequence.
func (o *Outbox) Put(seq uint64, t tradelog.Trade) error {
	rec := Record{Seq: seq, State: StateNew, Trade: t}
	val, err := encode(rec)
	if err != nil {
		return err
	}
	if err := o.db.Set(key(seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("outbox put seq %d: %w", seq, err)
	}
	return nil
}

// Get reads one record.
func (o *Outbox) Get(seq uint64) (Record, bool, error) {
	val, closer, err := o.db.Get(key(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("outbox get seq %d: %w", seq, err)
	}
	defer closer.Close()
	rec, err := decode(seq, val)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// ScanPending visits NEW and FAILED records in sequence order.
func (o *Outbox) ScanPending(fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyUpper,
	})
	if err != nil {
		return fmt.Errorf("outbox iter: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq := binary.BigEndian.Uint64(iter.Key()[len(keyPrefix):])
		rec, err := decode(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateNew && rec.State != StateFailed {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MarkSent transitions a record to SENT and stamps the attempt time.
func (o *Outbox) MarkSent(seq uint64) error { return o.transition(seq, StateSent, false) }

// MarkAcked transitions a record to ACKED.
func (o *Outbox) MarkAcked(seq uint64) error { return o.transition(seq, StateAcked, false) }

// MarkFailed transitions a record to FAILED and bumps its retry count.
func (o *Outbox) MarkFailed(seq uint64) error { return o.transition(seq, StateFailed, true) }

func (o *Outbox) transition(seq uint64, to State, bumpRetry bool) error {
	rec, ok, err := o.Get(seq)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("outbox seq %d: not found", seq)
	}
	rec.State = to
	rec.LastAttempt = time.Now().UnixNano()
	if bumpRetry {
		rec.Retries++
	}
	val, err := encode(rec)
	if err != nil {
		return err
	}
	if err := o.db.Set(key(seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("outbox mark seq %d %s: %w", seq, to, err)
	}
	return nil
}

// TruncateAckedUpTo deletes ACKED records with sequence at or below seq.
func (o *Outbox) TruncateAckedUpTo(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyAfter(seq),
	})
	if err != nil {
		return fmt.Errorf("outbox iter: %w", err)
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		s := binary.BigEndian.Uint64(iter.Key()[len(keyPrefix):])
		rec, err := decode(s, iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateAcked {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if err := o.db.Apply(batch, pebble.Sync); err != nil {
		return fmt.Errorf("outbox truncate: %w", err)
	}
	return nil
}

// ---- encoding ----

// value layout: [state:1][retries:4][lastAttempt:8][trade json]
const headerLen = 1 + 4 + 8

var (
	keyPrefix = []byte("t:")
	keyUpper  = []byte("t;") // ':'+1, exclusive upper bound for the prefix
)

func key(seq uint64) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], seq)
	return k
}

// keyAfter is the exclusive upper bound covering sequences <= seq.
func keyAfter(seq uint64) []byte {
	if seq == ^uint64(0) {
		return keyUpper
	}
	return key(seq + 1)
}

func encode(rec Record) ([]byte, error) {
	payload, err := json.Marshal(rec.Trade)
	if err != nil {
		return nil, fmt.Errorf("encode outbox trade: %w", err)
	}
	buf := make([]byte, headerLen+len(payload))
	buf[0] = byte(rec.State)
	binary.BigEndian.PutUint32(buf[1:5], rec.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(rec.LastAttempt))
	copy(buf[headerLen:], payload)
	return buf, nil
}

func decode(seq uint64, val []byte) (Record, error) {
	if len(val) < headerLen {
		return Record{}, fmt.Errorf("outbox seq %d: short record (%d bytes)", seq, len(val))
	}
	rec := Record{
		Seq:         seq,
		State:       State(val[0]),
		Retries:     binary.BigEndian.Uint32(val[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(val[5:13])),
	}
	if err := json.Unmarshal(val[headerLen:], &rec.Trade); err != nil {
		return Record{}, fmt.Errorf("outbox seq %d payload: %w", seq, err)
	}
	return rec, nil
}
